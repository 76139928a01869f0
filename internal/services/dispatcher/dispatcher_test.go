package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/killallgit/annotation-api/pkg/config"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueues() config.QueuesConfig {
	return config.QueuesConfig{
		Media:      config.QueueConfig{Name: "media", Workers: 1, SoftLimit: 25 * time.Minute, HardLimit: 30 * time.Minute},
		Annotation: config.QueueConfig{Name: "annotation", Workers: 1, SoftLimit: time.Minute, HardLimit: 2 * time.Minute},
	}
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	db := testutil.NewDB(t)
	return New(jobs.NewService(jobs.NewRepository(db), nil), testQueues(), nil)
}

func TestDispatcher_Route(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		jobType models.JobType
		queue   string
	}{
		{models.JobTypeMediaProbe, "media"},
		{models.JobTypeMediaFrames, "media"},
		{models.JobTypeMediaSegment, "media"},
		{models.JobTypeMediaWaveform, "media"},
		{models.JobTypeAnnotationExport, "annotation"},
		{models.JobTypeAnnotationStatistics, "annotation"},
		{models.JobTypeAnnotationBatchReview, "annotation"},
		{models.JobTypeAnnotationCleanup, "annotation"},
	}
	for _, tt := range tests {
		t.Run(string(tt.jobType), func(t *testing.T) {
			route, err := d.Route(tt.jobType)
			require.NoError(t, err)
			assert.Equal(t, tt.queue, route.Queue)
		})
	}

	_, err := d.Route("thumbnail_render")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestDispatcher_Types(t *testing.T) {
	d := newTestDispatcher(t)

	assert.Equal(t, []models.JobType{
		models.JobTypeMediaFrames,
		models.JobTypeMediaProbe,
		models.JobTypeMediaSegment,
		models.JobTypeMediaWaveform,
	}, d.Types("media"))
	assert.Len(t, d.Types("annotation"), 4)
	assert.Empty(t, d.Types("unknown"))
}

func TestDispatcher_EnqueueStampsRoute(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	job, err := d.Enqueue(ctx, models.JobTypeAnnotationExport, models.JobPayload{"project_id": 7}, jobs.WithQueue("media"))
	require.NoError(t, err)
	assert.Equal(t, "annotation", job.Queue, "route wins over caller option")
	assert.Equal(t, 60, job.SoftLimitSeconds)
	assert.Equal(t, 120, job.HardLimitSeconds)

	_, err = d.Enqueue(ctx, "unknown", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestDispatcher_EnqueueUnique(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	first, err := d.EnqueueUnique(ctx, models.JobTypeMediaProbe, models.JobPayload{"media_id": 3}, 3)
	require.NoError(t, err)
	assert.Equal(t, "media_probe:3", first.UniqueKey)
	assert.Equal(t, 1500, first.SoftLimitSeconds)
	assert.Equal(t, 1800, first.HardLimitSeconds)

	second, err := d.EnqueueUnique(ctx, models.JobTypeMediaProbe, models.JobPayload{"media_id": 3}, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUniqueKey(t *testing.T) {
	assert.Equal(t, "media_probe:12", UniqueKey(models.JobTypeMediaProbe, uint(12)))
	assert.Equal(t, "media_segment:4:1.5-3", UniqueKey(models.JobTypeMediaSegment, "4:1.5-3"))
}
