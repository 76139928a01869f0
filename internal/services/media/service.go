package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/killallgit/annotation-api/internal/metrics"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/storage"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxFrameFPS     = 60
	sniffLen        = 3072
	nameAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	nameLength      = 21
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	store      storage.ObjectStore
	dispatcher Dispatcher
	engine     *authz.Engine
	config     UploadConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Option configures optional service dependencies
type Option func(*ServiceImpl)

// WithMetrics records upload outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ServiceImpl) { s.metrics = m }
}

// NewService creates a new media registry
func NewService(db *gorm.DB, store storage.ObjectStore, dispatcher Dispatcher, engine *authz.Engine, cfg UploadConfig, logger *zap.Logger, opts ...Option) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FrameFPS <= 0 {
		cfg.FrameFPS = 1
	}
	s := &ServiceImpl{
		repository: NewRepository(db),
		store:      store,
		dispatcher: dispatcher,
		engine:     engine,
		config:     cfg,
		logger:     logger.Named("media"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DetectMediaType maps a filename extension onto the configured allow-lists
func (c UploadConfig) DetectMediaType(filename string) (models.MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", false
	}
	for _, e := range c.VideoExtensions {
		if strings.ToLower(e) == ext {
			return models.MediaTypeVideo, true
		}
	}
	for _, e := range c.AudioExtensions {
		if strings.ToLower(e) == ext {
			return models.MediaTypeAudio, true
		}
	}
	return "", false
}

func (s *ServiceImpl) Upload(ctx context.Context, subject authz.Subject, projectID uint, filename string, size int64, r io.Reader) (*models.MediaFile, error) {
	exists, err := s.repository.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("project", projectID)
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Media(projectID), authz.ActionWrite); err != nil {
		return nil, err
	}

	original := filepath.Base(strings.TrimSpace(filename))
	mediaType, ok := s.config.DetectMediaType(original)
	if !ok {
		s.metrics.RecordUpload("unknown", "rejected", 0)
		return nil, apperrors.ValidationError("file", fmt.Sprintf("unsupported file type %q", filepath.Ext(original)))
	}
	if size > s.config.MaxSize {
		s.metrics.RecordUpload(string(mediaType), "rejected", 0)
		return nil, apperrors.PayloadTooLarge(size, s.config.MaxSize)
	}

	body := &limitedReader{r: r, limit: s.config.MaxSize}
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		if errors.Is(err, errUploadTooLarge) {
			return nil, apperrors.PayloadTooLarge(body.read, s.config.MaxSize)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to read upload")
	}
	header = header[:n]
	contentType := mimetype.Detect(header).String()

	name, err := gonanoid.Generate(nameAlphabet, nameLength)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to generate object name")
	}
	name += strings.ToLower(filepath.Ext(original))
	key := ObjectKey(projectID, name)

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}
	if err := s.store.Put(ctx, key, io.MultiReader(bytes.NewReader(header), body), putSize, contentType); err != nil {
		if body.exceeded {
			s.deleteObject(ctx, key)
			s.metrics.RecordUpload(string(mediaType), "rejected", 0)
			return nil, apperrors.PayloadTooLarge(body.read, s.config.MaxSize)
		}
		s.metrics.RecordUpload(string(mediaType), "failed", 0)
		return nil, apperrors.UpstreamFailure("object_store", err)
	}

	media := &models.MediaFile{
		Filename:         name,
		OriginalFilename: original,
		StorageKey:       key,
		ContentType:      contentType,
		FileSize:         body.read,
		MediaType:        mediaType,
		ProjectID:        projectID,
		UploadedBy:       subject.UserID,
	}
	if err := s.repository.CreateMedia(ctx, media); err != nil {
		s.deleteObject(ctx, key)
		s.metrics.RecordUpload(string(mediaType), "failed", 0)
		return nil, err
	}
	s.metrics.RecordUpload(string(mediaType), "success", media.FileSize)

	if _, err := s.dispatcher.EnqueueUnique(ctx, models.JobTypeMediaProbe,
		models.JobPayload{"media_id": media.ID}, media.ID, jobs.WithCreatedBy(createdBy(subject))); err != nil {
		// The row stays unprocessed until a reprocess request
		s.logger.Error("Failed to enqueue probe", zap.Uint("media_id", media.ID), zap.Error(err))
	}

	s.logger.Info("Media uploaded",
		zap.Uint("media_id", media.ID),
		zap.Uint("project_id", projectID),
		zap.String("type", string(mediaType)),
		zap.Int64("size", media.FileSize))

	return media, nil
}

func (s *ServiceImpl) Get(ctx context.Context, subject authz.Subject, id uint) (*models.MediaFile, error) {
	media, err := s.repository.GetMediaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Media(media.ProjectID), authz.ActionRead); err != nil {
		return nil, err
	}
	return media, nil
}

func (s *ServiceImpl) List(ctx context.Context, subject authz.Subject, filter ListFilter) ([]models.MediaFile, int64, error) {
	filter.Skip, filter.Limit = normalizePage(filter.Skip, filter.Limit)
	if filter.MediaType != "" && filter.MediaType != models.MediaTypeVideo && filter.MediaType != models.MediaTypeAudio {
		return nil, 0, apperrors.ValidationError("media_type", "must be video or audio")
	}

	if filter.ProjectID != nil {
		if err := s.engine.RequireAccess(ctx, subject, authz.Project(*filter.ProjectID), authz.ActionRead); err != nil {
			return nil, 0, err
		}
		return s.repository.ListMedia(ctx, filter, nil, true)
	}

	ids, all, err := s.engine.VisibleProjectIDs(ctx, subject)
	if err != nil {
		return nil, 0, err
	}
	return s.repository.ListMedia(ctx, filter, ids, all)
}

func (s *ServiceImpl) Delete(ctx context.Context, subject authz.Subject, id uint) error {
	media, err := s.repository.GetMediaByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Media(media.ProjectID), authz.ActionManage); err != nil {
		return err
	}

	deleted, err := s.repository.DeleteMedia(ctx, id)
	if err != nil {
		return err
	}

	PurgeObjects(ctx, s.store, s.logger, *deleted)
	s.logger.Info("Media deleted", zap.Uint("media_id", id), zap.Uint("by", subject.UserID))
	return nil
}

func (s *ServiceImpl) Reprocess(ctx context.Context, subject authz.Subject, id uint) (*models.Job, error) {
	media, err := s.requireMedia(ctx, subject, id, authz.ActionWrite)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeMediaProbe,
		models.JobPayload{"media_id": media.ID}, media.ID, jobs.WithCreatedBy(createdBy(subject)))
}

func (s *ServiceImpl) RequestFrames(ctx context.Context, subject authz.Subject, id uint, fps float64) (*models.Job, error) {
	media, err := s.requireMedia(ctx, subject, id, authz.ActionWrite)
	if err != nil {
		return nil, err
	}
	if media.MediaType != models.MediaTypeVideo {
		return nil, apperrors.ValidationError("media_type", "frame extraction requires a video")
	}
	if fps == 0 {
		fps = s.config.FrameFPS
	}
	if fps < 0 || fps > maxFrameFPS {
		return nil, apperrors.ValidationError("fps", fmt.Sprintf("must be between 0 and %d", maxFrameFPS))
	}

	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeMediaFrames,
		models.JobPayload{"media_id": media.ID, "fps": fps},
		fmt.Sprintf("%d:%g", media.ID, fps),
		jobs.WithCreatedBy(createdBy(subject)))
}

func (s *ServiceImpl) RequestSegment(ctx context.Context, subject authz.Subject, id uint, start, end float64) (*models.Job, error) {
	media, err := s.requireMedia(ctx, subject, id, authz.ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := ValidateSegment(media, start, end); err != nil {
		return nil, err
	}

	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeMediaSegment,
		models.JobPayload{"media_id": media.ID, "start_time": start, "end_time": end},
		fmt.Sprintf("%d:%g-%g", media.ID, start, end),
		jobs.WithCreatedBy(createdBy(subject)))
}

func (s *ServiceImpl) RequestWaveform(ctx context.Context, subject authz.Subject, id uint) (*models.Job, error) {
	media, err := s.requireMedia(ctx, subject, id, authz.ActionWrite)
	if err != nil {
		return nil, err
	}
	if media.MediaType != models.MediaTypeAudio {
		return nil, apperrors.ValidationError("media_type", "waveform extraction requires an audio file")
	}
	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeMediaWaveform,
		models.JobPayload{"media_id": media.ID}, media.ID, jobs.WithCreatedBy(createdBy(subject)))
}

func (s *ServiceImpl) ListSegments(ctx context.Context, subject authz.Subject, id uint) ([]models.VideoSegment, error) {
	media, err := s.requireMedia(ctx, subject, id, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.repository.ListSegments(ctx, media.ID)
}

func (s *ServiceImpl) UpdateDerived(ctx context.Context, id uint, duration float64, metadata models.JSONMap) error {
	return s.repository.UpdateDerived(ctx, id, duration, metadata)
}

// ValidateSegment checks a cut range against a video before any work is queued
func ValidateSegment(media *models.MediaFile, start, end float64) error {
	if media.MediaType != models.MediaTypeVideo {
		return apperrors.ValidationError("media_type", "segment cutting requires a video")
	}
	if start < 0 || end < 0 {
		return apperrors.ValidationError("start_time", "times must be non-negative")
	}
	if start >= end {
		return apperrors.ValidationError("end_time", "start time must be before end time")
	}
	if media.Duration != nil && end > *media.Duration {
		return apperrors.ValidationError("end_time", fmt.Sprintf("exceeds media duration %g", *media.Duration))
	}
	return nil
}

func (s *ServiceImpl) requireMedia(ctx context.Context, subject authz.Subject, id uint, action authz.Action) (*models.MediaFile, error) {
	media, err := s.repository.GetMediaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Media(media.ProjectID), action); err != nil {
		return nil, err
	}
	return media, nil
}

func (s *ServiceImpl) deleteObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("Failed to delete orphaned upload", zap.String("key", key), zap.Error(err))
	}
}

func createdBy(subject authz.Subject) string {
	return fmt.Sprintf("user:%d", subject.UserID)
}

func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return skip, limit
}

// limitedReader fails once more than limit bytes are read
type limitedReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errUploadTooLarge
	}
	// Read at most one byte past the limit
	if max := l.limit - l.read + 1; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		l.exceeded = true
		return n, errUploadTooLarge
	}
	return n, err
}
