package annotations_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/api/apitest"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/batch"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// BatchIntegrationSuite drives annotation jobs through a real worker pool
type BatchIntegrationSuite struct {
	suite.Suite
	env      *apitest.Env
	owner    *models.User
	reviewer *models.User
	project  *models.Project
	media    *models.MediaFile
	stop     func()
}

func (s *BatchIntegrationSuite) SetupTest() {
	t := s.T()
	s.env = apitest.New(t)
	db := s.env.DB

	s.owner = testutil.CreateUser(t, db, "owner", models.RoleProjectManager)
	annotator := testutil.CreateUser(t, db, "alice", models.RoleAnnotator)
	s.reviewer = testutil.CreateUser(t, db, "rita", models.RoleReviewer)
	s.project = testutil.CreateProject(t, db, "birds", s.owner)
	testutil.AddMember(t, db, s.project, annotator, models.RoleAnnotator)
	testutil.AddMember(t, db, s.project, s.reviewer, models.RoleReviewer)
	s.media = testutil.CreateMedia(t, db, s.project, s.owner, models.MediaTypeAudio, testutil.Float(30))

	for i := 0; i < 3; i++ {
		testutil.CreateAnnotation(t, db, s.media, annotator, models.AnnotationStatusPending)
	}

	queue, err := s.env.App.Queue("annotation")
	require.NoError(t, err)
	pool := s.env.App.WorkerPool(queue)
	require.NoError(t, pool.Start(context.Background()))
	s.stop = pool.Stop
}

func (s *BatchIntegrationSuite) TearDownTest() {
	if s.stop != nil {
		s.stop()
	}
}

func TestBatchIntegrationSuite(t *testing.T) {
	suite.Run(t, new(BatchIntegrationSuite))
}

// submit posts to a project job route and waits for the job to finish
func (s *BatchIntegrationSuite) submit(user *models.User, route string, body any) *models.Job {
	t := s.T()
	rec := s.env.Do(t, http.MethodPost, fmt.Sprintf("/api/v1/projects/%d/%s", s.project.ID, route), s.env.Token(t, user), body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp types.JobResponse
	apitest.Decode(t, rec, &resp)

	var job *models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.env.App.Jobs.GetJob(context.Background(), resp.JobID)
		if err != nil {
			return false
		}
		return job.Status == models.JobStatusCompleted || job.Status == models.JobStatusPermanentlyFailed
	}, 10*time.Second, 20*time.Millisecond)
	return job
}

func (s *BatchIntegrationSuite) TestBatchReviewApprovesAllPending() {
	t := s.T()

	job := s.submit(s.reviewer, "batch-review", map[string]string{"status": "approved", "comment": "bulk"})
	require.Equal(t, models.JobStatusCompleted, job.Status, job.Error)
	assert.EqualValues(t, 3, job.Result["updated_count"])
	assert.Equal(t, "approved", job.Result["new_status"])

	var pending int64
	require.NoError(t, s.env.DB.Model(&models.Annotation{}).
		Where("status = ?", models.AnnotationStatusPending).Count(&pending).Error)
	assert.Zero(t, pending)

	var reviewed []models.Annotation
	require.NoError(t, s.env.DB.Find(&reviewed).Error)
	for _, a := range reviewed {
		require.NotNil(t, a.ReviewerID)
		assert.Equal(t, s.reviewer.ID, *a.ReviewerID)
	}
}

func (s *BatchIntegrationSuite) TestExportWritesDocument() {
	t := s.T()

	job := s.submit(s.owner, "export", nil)
	require.Equal(t, models.JobStatusCompleted, job.Status, job.Error)
	key, ok := job.Result["export_key"].(string)
	require.True(t, ok)

	r, err := s.env.App.Store.Get(context.Background(), key)
	require.NoError(t, err)
	defer r.Close()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	var doc batch.ExportDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "birds", doc.Project.Name)
	assert.Len(t, doc.Annotations, 3)
}

func (s *BatchIntegrationSuite) TestStatisticsCountsStatuses() {
	t := s.T()

	job := s.submit(s.owner, "statistics", nil)
	require.Equal(t, models.JobStatusCompleted, job.Status, job.Error)
	assert.EqualValues(t, 3, job.Result["total_annotations"])
	statuses, ok := job.Result["status_distribution"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, statuses["pending"])
}
