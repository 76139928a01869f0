package annotations_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/killallgit/annotation-api/api/apitest"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AnnotationHandlersSuite struct {
	suite.Suite
	env      *apitest.Env
	owner    *models.User
	alice    *models.User
	dave     *models.User
	reviewer *models.User
	project  *models.Project
	label    *models.Label
	media    *models.MediaFile
}

func (s *AnnotationHandlersSuite) SetupTest() {
	t := s.T()
	s.env = apitest.New(t)
	db := s.env.DB

	s.owner = testutil.CreateUser(t, db, "owner", models.RoleProjectManager)
	s.alice = testutil.CreateUser(t, db, "alice", models.RoleAnnotator)
	s.dave = testutil.CreateUser(t, db, "dave", models.RoleAnnotator)
	s.reviewer = testutil.CreateUser(t, db, "rita", models.RoleReviewer)

	s.project = testutil.CreateProject(t, db, "birds", s.owner)
	testutil.AddMember(t, db, s.project, s.alice, models.RoleAnnotator)
	testutil.AddMember(t, db, s.project, s.dave, models.RoleAnnotator)
	testutil.AddMember(t, db, s.project, s.reviewer, models.RoleReviewer)

	s.label = testutil.CreateLabel(t, db, s.project, "song", nil)
	s.media = testutil.CreateMedia(t, db, s.project, s.owner, models.MediaTypeAudio, testutil.Float(60))
}

func TestAnnotationHandlersSuite(t *testing.T) {
	suite.Run(t, new(AnnotationHandlersSuite))
}

func (s *AnnotationHandlersSuite) create(user *models.User, body map[string]any) *models.Annotation {
	t := s.T()
	rec := s.env.Do(t, http.MethodPost, "/api/v1/annotations", s.env.Token(t, user), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var annotation models.Annotation
	apitest.Decode(t, rec, &annotation)
	return &annotation
}

func (s *AnnotationHandlersSuite) segment(start, end float64) map[string]any {
	return map[string]any{
		"media_file_id":   s.media.ID,
		"label_id":        s.label.ID,
		"annotation_type": "audio_segment",
		"start_time":      start,
		"end_time":        end,
		"confidence":      0.8,
	}
}

func (s *AnnotationHandlersSuite) TestCreate() {
	annotation := s.create(s.alice, s.segment(1, 2.5))

	assert.Equal(s.T(), s.alice.ID, annotation.AnnotatorID)
	assert.Equal(s.T(), models.AnnotationStatusPending, annotation.Status)
	assert.Equal(s.T(), models.AnnotationTypeAudioSegment, annotation.AnnotationType)
	require.NotNil(s.T(), annotation.LabelID)
	assert.Equal(s.T(), s.label.ID, *annotation.LabelID)
}

func (s *AnnotationHandlersSuite) TestCreateValidation() {
	t := s.T()
	token := s.env.Token(t, s.alice)

	otherProject := testutil.CreateProject(t, s.env.DB, "other", s.owner)
	foreignLabel := testutil.CreateLabel(t, s.env.DB, otherProject, "alien", nil)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"unknown type", func(b map[string]any) { b["annotation_type"] = "blob" }, "annotation_type"},
		{"inverted range", func(b map[string]any) { b["start_time"], b["end_time"] = 5.0, 4.0 }, "end_time"},
		{"negative start", func(b map[string]any) { b["start_time"] = -1.0 }, "start_time"},
		{"past duration", func(b map[string]any) { b["end_time"] = 61.0 }, "end_time"},
		{"confidence above one", func(b map[string]any) { b["confidence"] = 1.5 }, "confidence"},
		{"label from another project", func(b map[string]any) { b["label_id"] = foreignLabel.ID }, "label_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := s.segment(1, 2)
			tt.mutate(body)
			rec := s.env.Do(t, http.MethodPost, "/api/v1/annotations", token, body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp types.ErrorResponse
			apitest.Decode(t, rec, &resp)
			assert.Equal(t, "VALIDATION", resp.Code)
			assert.Equal(t, tt.field, resp.Details["field"])
		})
	}

	rec := s.env.Do(t, http.MethodPost, "/api/v1/annotations", token, map[string]any{"annotation_type": "point"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (s *AnnotationHandlersSuite) TestCreateOutsideProject() {
	t := s.T()
	outsider := testutil.CreateUser(t, s.env.DB, "bob", models.RoleAnnotator)

	rec := s.env.Do(t, http.MethodPost, "/api/v1/annotations", s.env.Token(t, outsider), s.segment(1, 2))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func (s *AnnotationHandlersSuite) TestUpdateOnlyByAnnotator() {
	t := s.T()
	annotation := s.create(s.alice, s.segment(1, 2))
	path := fmt.Sprintf("/api/v1/annotations/%d", annotation.ID)

	rec := s.env.Do(t, http.MethodPut, path, s.env.Token(t, s.dave), map[string]any{"end_time": 3.0})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.env.Do(t, http.MethodPut, path, s.env.Token(t, s.alice), map[string]any{"end_time": 3.0, "clear_label": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Annotation
	apitest.Decode(t, rec, &updated)
	require.NotNil(t, updated.EndTime)
	assert.Equal(t, 3.0, *updated.EndTime)
	assert.Nil(t, updated.LabelID)

	// a partial update is validated against the stored start time
	rec = s.env.Do(t, http.MethodPut, path, s.env.Token(t, s.alice), map[string]any{"end_time": 0.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (s *AnnotationHandlersSuite) TestDelete() {
	t := s.T()
	annotation := s.create(s.alice, s.segment(1, 2))
	path := fmt.Sprintf("/api/v1/annotations/%d", annotation.ID)

	rec := s.env.Do(t, http.MethodDelete, path, s.env.Token(t, s.reviewer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.env.Do(t, http.MethodDelete, path, s.env.Token(t, s.alice), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.env.Do(t, http.MethodGet, path, s.env.Token(t, s.alice), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (s *AnnotationHandlersSuite) TestReviewPermissions() {
	t := s.T()
	annotation := s.create(s.alice, s.segment(1, 2))
	path := fmt.Sprintf("/api/v1/annotations/%d/review", annotation.ID)
	approve := map[string]any{"status": "approved", "comment": "clean"}

	for _, user := range []*models.User{s.alice, s.dave} {
		rec := s.env.Do(t, http.MethodPost, path, s.env.Token(t, user), approve)
		assert.Equal(t, http.StatusForbidden, rec.Code, user.Username)
	}

	rec := s.env.Do(t, http.MethodPost, path, s.env.Token(t, s.reviewer), map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.env.Do(t, http.MethodPost, path, s.env.Token(t, s.reviewer), approve)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reviewed models.Annotation
	apitest.Decode(t, rec, &reviewed)
	assert.Equal(t, models.AnnotationStatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	assert.Equal(t, s.reviewer.ID, *reviewed.ReviewerID)

	// the project owner may review too
	rec = s.env.Do(t, http.MethodPost, path, s.env.Token(t, s.owner), map[string]any{"status": "rejected"})
	require.Equal(t, http.StatusOK, rec.Code)
	apitest.Decode(t, rec, &reviewed)
	assert.Equal(t, models.AnnotationStatusRejected, reviewed.Status)
}

func (s *AnnotationHandlersSuite) list(user *models.User, query string) int64 {
	t := s.T()
	rec := s.env.Do(t, http.MethodGet, "/api/v1/annotations?"+query, s.env.Token(t, user), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Items []models.Annotation `json:"items"`
		Total int64               `json:"total"`
	}
	apitest.Decode(t, rec, &page)
	assert.Len(t, page.Items, int(page.Total))
	return page.Total
}

func (s *AnnotationHandlersSuite) TestListShowsPendingOnlyToAnnotator() {
	t := s.T()
	s.create(s.alice, s.segment(1, 2))
	s.create(s.alice, s.segment(3, 4))
	daves := s.create(s.dave, s.segment(5, 6))
	byMedia := fmt.Sprintf("media_file_id=%d", s.media.ID)

	assert.EqualValues(t, 2, s.list(s.alice, byMedia))
	assert.EqualValues(t, 0, s.list(s.reviewer, byMedia))

	rec := s.env.Do(t, http.MethodPost, fmt.Sprintf("/api/v1/annotations/%d/review", daves.ID),
		s.env.Token(t, s.reviewer), map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.EqualValues(t, 3, s.list(s.alice, byMedia))
	assert.EqualValues(t, 1, s.list(s.alice, byMedia+"&status=approved"))
	assert.EqualValues(t, 1, s.list(s.reviewer, fmt.Sprintf("project_id=%d", s.project.ID)))
}

func (s *AnnotationHandlersSuite) TestListRejectsBadQuery() {
	t := s.T()
	token := s.env.Token(t, s.reviewer)

	for _, query := range []string{"status=bogus", "limit=abc", "media_file_id=0"} {
		rec := s.env.Do(t, http.MethodGet, "/api/v1/annotations?"+query, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
