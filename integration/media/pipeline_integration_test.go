package media_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"os/exec"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/api/apitest"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/killallgit/annotation-api/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentWAV returns a mono 16-bit PCM wav of the given length
func silentWAV(seconds float64) []byte {
	const rate = 8000
	samples := int(seconds * rate)
	data := make([]byte, samples*2)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func waitForJob(t *testing.T, env *apitest.Env, jobType models.JobType) *models.Job {
	t.Helper()
	var done *models.Job
	require.Eventually(t, func() bool {
		list, err := env.App.Jobs.ListJobs(context.Background(), jobs.ListFilter{Type: jobType})
		if err != nil || len(list) == 0 {
			return false
		}
		if list[0].Status == models.JobStatusCompleted || list[0].Status == models.JobStatusFailed ||
			list[0].Status == models.JobStatusPermanentlyFailed {
			done = list[0]
			return true
		}
		return false
	}, 20*time.Second, 50*time.Millisecond)
	return done
}

func TestUploadProbeAndOutOfRangeFlag(t *testing.T) {
	requireFFmpeg(t)

	env := apitest.New(t, func(cfg *config.Config) {
		cfg.Processing.FFmpegPath = "ffmpeg"
		cfg.Processing.FFprobePath = "ffprobe"
		cfg.Processing.FFmpegTimeout = 30 * time.Second
	})
	owner := testutil.CreateUser(t, env.DB, "owner", models.RoleProjectManager)
	project := testutil.CreateProject(t, env.DB, "calls", owner)
	token := env.Token(t, owner)

	rec := env.Upload(t, token, project.ID, "call.wav", silentWAV(2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var media models.MediaFile
	apitest.Decode(t, rec, &media)
	require.Nil(t, media.Duration)

	// Annotations past the real length are accepted before the probe and
	// flagged once the duration is known
	late := testutil.CreateAnnotation(t, env.DB, &media, owner, models.AnnotationStatusPending)
	require.NoError(t, env.DB.Model(late).Updates(map[string]any{"start_time": 1.0, "end_time": 5.0}).Error)

	queue, err := env.App.Queue("media")
	require.NoError(t, err)
	pool := env.App.WorkerPool(queue)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	job := waitForJob(t, env, models.JobTypeMediaProbe)
	require.Equal(t, models.JobStatusCompleted, job.Status, job.Error)

	var stored models.MediaFile
	require.NoError(t, env.DB.First(&stored, media.ID).Error)
	require.NotNil(t, stored.Duration)
	assert.InDelta(t, 2.0, *stored.Duration, 0.1)

	var flagged models.Annotation
	require.NoError(t, env.DB.First(&flagged, late.ID).Error)
	assert.True(t, flagged.OutOfRange)

	rec = env.Do(t, http.MethodPost, fmt.Sprintf("/api/v1/media/%d/waveform", media.ID), token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job = waitForJob(t, env, models.JobTypeMediaWaveform)
	assert.Equal(t, models.JobStatusCompleted, job.Status, job.Error)
}
