package media

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/dispatcher"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/testutil"
	"github.com/killallgit/annotation-api/pkg/config"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type MediaServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	root    string
	store   *storage.LocalStore
	jobs    jobs.Service
	service Service
	ctx     context.Context

	owner     *models.User
	annotator *models.User
	outsider  *models.User
	project   *models.Project
}

func (s *MediaServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())

	s.root = s.T().TempDir()
	store, err := storage.NewLocalStore(s.root)
	s.Require().NoError(err)
	s.store = store

	s.jobs = jobs.NewService(jobs.NewRepository(s.db), nil)
	d := dispatcher.New(s.jobs, config.QueuesConfig{
		Media:      config.QueueConfig{Name: "media", SoftLimit: time.Minute, HardLimit: 2 * time.Minute},
		Annotation: config.QueueConfig{Name: "annotation", SoftLimit: time.Minute, HardLimit: 2 * time.Minute},
	}, nil)

	engine := authz.NewEngine(authz.NewGormLookup(s.db))
	s.service = NewService(s.db, store, d, engine, UploadConfig{
		MaxSize:         64,
		VideoExtensions: []string{".mp4", ".mov"},
		AudioExtensions: []string{".wav"},
		FrameFPS:        2,
	}, nil)

	s.owner = testutil.CreateUser(s.T(), s.db, "owner", models.RoleProjectManager)
	s.annotator = testutil.CreateUser(s.T(), s.db, "annotator", models.RoleAnnotator)
	s.outsider = testutil.CreateUser(s.T(), s.db, "outsider", models.RoleAnnotator)
	s.project = testutil.CreateProject(s.T(), s.db, "clips", s.owner)
	testutil.AddMember(s.T(), s.db, s.project, s.annotator, models.RoleAnnotator)
}

func subjectOf(u *models.User) authz.Subject {
	return authz.Subject{UserID: u.ID, Role: u.Role}
}

func (s *MediaServiceTestSuite) objectCount() int {
	count := 0
	_ = filepath.Walk(s.root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
		}
		return nil
	})
	return count
}

func (s *MediaServiceTestSuite) TestUpload() {
	content := []byte("0000ftypisomfake video bytes")
	media, err := s.service.Upload(s.ctx, subjectOf(s.annotator), s.project.ID, "Holiday.MP4", int64(len(content)), bytes.NewReader(content))
	s.Require().NoError(err)

	s.Nil(media.Duration)
	s.False(media.IsProcessed())
	s.Equal(models.MediaTypeVideo, media.MediaType)
	s.Equal("Holiday.MP4", media.OriginalFilename)
	s.True(strings.HasSuffix(media.Filename, ".mp4"))
	s.Equal(ObjectKey(s.project.ID, media.Filename), media.StorageKey)
	s.Equal(int64(len(content)), media.FileSize)
	s.NotEmpty(media.ContentType)

	rc, err := s.store.Get(s.ctx, media.StorageKey)
	s.Require().NoError(err)
	stored, _ := io.ReadAll(rc)
	rc.Close()
	s.Equal(content, stored)

	pending, err := s.jobs.ListJobs(s.ctx, jobs.ListFilter{Queue: "media", Type: models.JobTypeMediaProbe})
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(dispatcher.UniqueKey(models.JobTypeMediaProbe, media.ID), pending[0].UniqueKey)
	id, _ := pending[0].GetPayloadUint("media_id")
	s.Equal(media.ID, id)
}

func (s *MediaServiceTestSuite) TestUploadRejections() {
	tests := []struct {
		name     string
		subject  authz.Subject
		project  uint
		filename string
		size     int64
		body     []byte
		code     apperrors.ErrorCode
	}{
		{"missing project", subjectOf(s.owner), 999, "a.mp4", 4, []byte("abcd"), apperrors.ErrCodeNotFound},
		{"outsider", subjectOf(s.outsider), s.project.ID, "a.mp4", 4, []byte("abcd"), apperrors.ErrCodeForbidden},
		{"unsupported extension", subjectOf(s.annotator), s.project.ID, "notes.txt", 4, []byte("abcd"), apperrors.ErrCodeValidation},
		{"no extension", subjectOf(s.annotator), s.project.ID, "README", 4, []byte("abcd"), apperrors.ErrCodeValidation},
		{"declared size over limit", subjectOf(s.annotator), s.project.ID, "a.wav", 65, bytes.Repeat([]byte("x"), 65), apperrors.ErrCodePayloadTooLarge},
		{"undeclared size over limit", subjectOf(s.annotator), s.project.ID, "a.wav", 0, bytes.Repeat([]byte("x"), 200), apperrors.ErrCodePayloadTooLarge},
		{"understated size over limit", subjectOf(s.annotator), s.project.ID, "a.mov", 10, bytes.Repeat([]byte("x"), 100), apperrors.ErrCodePayloadTooLarge},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Upload(s.ctx, tt.subject, tt.project, tt.filename, tt.size, bytes.NewReader(tt.body))
			s.Require().Error(err)
			s.Equal(tt.code, apperrors.GetCode(err))
		})
	}

	var rows int64
	s.db.Model(&models.MediaFile{}).Count(&rows)
	s.Zero(rows)
	s.Zero(s.objectCount(), "rejected uploads leave no objects")
}

func (s *MediaServiceTestSuite) TestUploadExactLimit() {
	body := bytes.Repeat([]byte("y"), 64)
	media, err := s.service.Upload(s.ctx, subjectOf(s.annotator), s.project.ID, "tone.wav", 0, bytes.NewReader(body))
	s.Require().NoError(err)
	s.Equal(int64(64), media.FileSize)
	s.Equal(models.MediaTypeAudio, media.MediaType)
}

func (s *MediaServiceTestSuite) TestGetAndList() {
	video := testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeVideo, nil)
	testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeAudio, testutil.Float(3))
	other := testutil.CreateProject(s.T(), s.db, "other", s.outsider)
	testutil.CreateMedia(s.T(), s.db, other, s.outsider, models.MediaTypeVideo, nil)

	got, err := s.service.Get(s.ctx, subjectOf(s.annotator), video.ID)
	s.Require().NoError(err)
	s.Equal(video.ID, got.ID)

	_, err = s.service.Get(s.ctx, subjectOf(s.outsider), video.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeForbidden))
	_, err = s.service.Get(s.ctx, subjectOf(s.owner), 999)
	s.True(apperrors.Is(err, apperrors.ErrCodeNotFound))

	files, total, err := s.service.List(s.ctx, subjectOf(s.annotator), ListFilter{})
	s.Require().NoError(err)
	s.Equal(int64(2), total, "only visible projects are listed")
	s.Len(files, 2)

	files, _, err = s.service.List(s.ctx, subjectOf(s.annotator), ListFilter{ProjectID: &s.project.ID, MediaType: models.MediaTypeAudio})
	s.Require().NoError(err)
	s.Len(files, 1)

	_, _, err = s.service.List(s.ctx, subjectOf(s.outsider), ListFilter{ProjectID: &s.project.ID})
	s.True(apperrors.Is(err, apperrors.ErrCodeForbidden))

	_, _, err = s.service.List(s.ctx, subjectOf(s.annotator), ListFilter{MediaType: "image"})
	s.True(apperrors.Is(err, apperrors.ErrCodeValidation))
}

func (s *MediaServiceTestSuite) TestDelete() {
	content := []byte("video")
	media, err := s.service.Upload(s.ctx, subjectOf(s.annotator), s.project.ID, "a.mp4", int64(len(content)), bytes.NewReader(content))
	s.Require().NoError(err)
	testutil.CreateAnnotation(s.T(), s.db, media, s.annotator, models.AnnotationStatusPending)
	s.Require().NoError(s.store.Put(s.ctx, FrameKey(media.ID, "frame_0001.jpg"), strings.NewReader("jpg"), 3, "image/jpeg"))
	s.Require().NoError(s.store.Put(s.ctx, SegmentKey(media.ID, 0, 1.5), strings.NewReader("mp4"), 3, "video/mp4"))
	s.Require().NoError(s.db.Create(&models.VideoSegment{MediaFileID: media.ID, StartTime: 0, EndTime: 1.5, StorageKey: SegmentKey(media.ID, 0, 1.5)}).Error)

	err = s.service.Delete(s.ctx, subjectOf(s.annotator), media.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeForbidden), "annotators cannot delete media")

	s.Require().NoError(s.service.Delete(s.ctx, subjectOf(s.owner), media.ID))

	var annotations, segments int64
	s.db.Model(&models.Annotation{}).Count(&annotations)
	s.db.Model(&models.VideoSegment{}).Count(&segments)
	s.Zero(annotations)
	s.Zero(segments)
	s.Zero(s.objectCount())

	err = s.service.Delete(s.ctx, subjectOf(s.owner), media.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func (s *MediaServiceTestSuite) TestProcessingRequests() {
	video := testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeVideo, testutil.Float(120))
	audio := testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeAudio, nil)
	sub := subjectOf(s.annotator)

	job, err := s.service.RequestFrames(s.ctx, sub, video.ID, 0)
	s.Require().NoError(err)
	fps, _ := job.GetPayloadFloat("fps")
	s.Equal(2.0, fps, "configured fps is the default")
	s.Equal("media", job.Queue)

	job, err = s.service.RequestSegment(s.ctx, sub, video.ID, 10, 20.5)
	s.Require().NoError(err)
	again, err := s.service.RequestSegment(s.ctx, sub, video.ID, 10, 20.5)
	s.Require().NoError(err)
	s.Equal(job.ID, again.ID)

	job, err = s.service.RequestWaveform(s.ctx, sub, audio.ID)
	s.Require().NoError(err)
	s.Equal(models.JobTypeMediaWaveform, job.Type)

	job, err = s.service.Reprocess(s.ctx, sub, audio.ID)
	s.Require().NoError(err)
	s.Equal(models.JobTypeMediaProbe, job.Type)

	invalid := []struct {
		name string
		call func() error
	}{
		{"frames on audio", func() error { _, err := s.service.RequestFrames(s.ctx, sub, audio.ID, 1); return err }},
		{"negative fps", func() error { _, err := s.service.RequestFrames(s.ctx, sub, video.ID, -1); return err }},
		{"segment start equals end", func() error { _, err := s.service.RequestSegment(s.ctx, sub, video.ID, 5, 5); return err }},
		{"segment past duration", func() error { _, err := s.service.RequestSegment(s.ctx, sub, video.ID, 100, 121); return err }},
		{"segment on audio", func() error { _, err := s.service.RequestSegment(s.ctx, sub, audio.ID, 0, 1); return err }},
		{"waveform on video", func() error { _, err := s.service.RequestWaveform(s.ctx, sub, video.ID); return err }},
	}
	before, _ := s.jobs.ListJobs(s.ctx, jobs.ListFilter{})
	for _, tt := range invalid {
		s.Run(tt.name, func() {
			s.True(apperrors.Is(tt.call(), apperrors.ErrCodeValidation))
		})
	}
	after, _ := s.jobs.ListJobs(s.ctx, jobs.ListFilter{})
	s.Len(after, len(before), "rejected requests enqueue nothing")

	_, err = s.service.RequestWaveform(s.ctx, subjectOf(s.outsider), audio.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeForbidden))
}

func (s *MediaServiceTestSuite) TestUpdateDerivedAndSegments() {
	video := testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeVideo, nil)

	meta := models.JSONMap{"format": "mov,mp4", "duration": 12.5}
	s.Require().NoError(s.service.UpdateDerived(s.ctx, video.ID, 12.5, meta))
	s.Require().NoError(s.service.UpdateDerived(s.ctx, video.ID, 12.5, meta))

	got, err := s.service.Get(s.ctx, subjectOf(s.owner), video.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Duration)
	s.Equal(12.5, *got.Duration)
	s.Equal("mov,mp4", got.DerivedMetadata["format"])

	err = s.service.UpdateDerived(s.ctx, 999, 1, nil)
	s.True(apperrors.Is(err, apperrors.ErrCodeNotFound))

	repo := NewRepository(s.db)
	for i := 0; i < 2; i++ {
		seg := &models.VideoSegment{MediaFileID: video.ID, StartTime: 1, EndTime: 2, StorageKey: SegmentKey(video.ID, 1, 2)}
		s.Require().NoError(repo.UpsertSegment(s.ctx, seg))
		s.NotZero(seg.ID)
	}

	segments, err := s.service.ListSegments(s.ctx, subjectOf(s.annotator), video.ID)
	s.Require().NoError(err)
	s.Len(segments, 1, "re-cutting converges to one row")
}

func TestMediaServiceTestSuite(t *testing.T) {
	suite.Run(t, new(MediaServiceTestSuite))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "projects/7/abc.mp4", ObjectKey(7, "abc.mp4"))
	assert.Equal(t, "frames/3/frame_0001.jpg", FrameKey(3, "frame_0001.jpg"))
	assert.Equal(t, "segments/3/1.5_10.mp4", SegmentKey(3, 1.5, 10))
	assert.Equal(t, "exports/2/annotations.json", ExportKey(2))
}

func TestDetectMediaType(t *testing.T) {
	cfg := UploadConfig{VideoExtensions: []string{".mp4"}, AudioExtensions: []string{".WAV"}}

	tests := []struct {
		filename string
		want     models.MediaType
		ok       bool
	}{
		{"clip.mp4", models.MediaTypeVideo, true},
		{"CLIP.MP4", models.MediaTypeVideo, true},
		{"tone.wav", models.MediaTypeAudio, true},
		{"doc.pdf", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := cfg.DetectMediaType(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
