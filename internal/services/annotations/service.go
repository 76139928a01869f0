// Package annotations owns annotation records and their review workflow.
//
// Annotations start pending. A reviewer moves them to approved or rejected;
// the decision is applied whatever the current status is, so a second review
// overwrites the first.
package annotations

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/annotation-api/internal/events"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	engine     *authz.Engine
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewService creates a new annotation service. publisher may be nil.
func NewService(repository Repository, engine *authz.Engine, publisher events.Publisher, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ServiceImpl{
		repository: repository,
		engine:     engine,
		publisher:  publisher,
		logger:     logger.Named("annotations"),
	}
}

func (s *ServiceImpl) Create(ctx context.Context, subject authz.Subject, input CreateInput) (*models.Annotation, error) {
	media, err := s.repository.GetMediaByID(ctx, input.MediaFileID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Media(media.ProjectID), authz.ActionWrite); err != nil {
		return nil, err
	}

	annotation := &models.Annotation{
		MediaFileID: media.ID,
		AnnotatorID: subject.UserID,
		LabelID:     input.LabelID,
		Payload:     input.Payload,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Confidence:  1,
		Status:      models.AnnotationStatusPending,
	}
	if input.LabelID != nil {
		if err := s.checkLabel(ctx, *input.LabelID, media.ProjectID); err != nil {
			return nil, err
		}
	}
	annotationType, err := parseType(input.AnnotationType)
	if err != nil {
		return nil, err
	}
	annotation.AnnotationType = annotationType
	if input.Confidence != nil {
		annotation.Confidence = *input.Confidence
	}
	if err := validate(annotation, media); err != nil {
		return nil, err
	}
	if annotation.Payload == nil {
		annotation.Payload = models.JSONMap{}
	}

	if err := s.repository.CreateAnnotation(ctx, annotation); err != nil {
		return nil, err
	}

	s.logger.Debug("Annotation created",
		zap.Uint("annotation_id", annotation.ID),
		zap.Uint("media_id", media.ID),
		zap.Uint("annotator_id", subject.UserID))
	return annotation, nil
}

func (s *ServiceImpl) Get(ctx context.Context, subject authz.Subject, id uint) (*models.Annotation, error) {
	annotation, _, err := s.load(ctx, subject, id, authz.ActionRead)
	return annotation, err
}

func (s *ServiceImpl) List(ctx context.Context, subject authz.Subject, filter Filter) ([]models.Annotation, int64, error) {
	query := Query{
		MediaFileID: filter.MediaFileID,
		ProjectID:   filter.ProjectID,
		Skip:        filter.Skip,
		Limit:       filter.Limit,
	}
	if query.Skip < 0 {
		return nil, 0, apperrors.ValidationError("skip", "must be non-negative")
	}
	if query.Limit == 0 {
		query.Limit = defaultPageSize
	}
	if query.Limit < 0 || query.Limit > maxPageSize {
		return nil, 0, apperrors.ValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxPageSize))
	}
	if filter.AnnotationType != "" {
		t, err := parseType(filter.AnnotationType)
		if err != nil {
			return nil, 0, err
		}
		query.AnnotationType = t
	}
	if filter.Status != "" {
		status, ok := models.ParseAnnotationStatus(filter.Status)
		if !ok {
			return nil, 0, apperrors.ValidationError("status", "must be pending, approved or rejected")
		}
		query.Status = status
	}

	if filter.MediaFileID != nil {
		media, err := s.repository.GetMediaByID(ctx, *filter.MediaFileID)
		if err != nil {
			return nil, 0, err
		}
		if err := s.engine.RequireAccess(ctx, subject, authz.Media(media.ProjectID), authz.ActionRead); err != nil {
			return nil, 0, err
		}
	}
	if filter.ProjectID != nil {
		if err := s.engine.RequireAccess(ctx, subject, authz.Project(*filter.ProjectID), authz.ActionRead); err != nil {
			return nil, 0, err
		}
	}
	if filter.MediaFileID == nil && filter.ProjectID == nil {
		ids, all, err := s.engine.VisibleProjectIDs(ctx, subject)
		if err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to resolve visible projects")
		}
		query.ProjectIDs, query.Restrict = ids, !all
	}

	if !subject.IsAdmin() {
		me := subject.UserID
		query.VisibleTo = &me
	}

	return s.repository.ListAnnotations(ctx, query)
}

func (s *ServiceImpl) Update(ctx context.Context, subject authz.Subject, id uint, patch Patch) (*models.Annotation, error) {
	annotation, media, err := s.load(ctx, subject, id, authz.ActionWrite)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	switch {
	case patch.ClearLabel:
		annotation.LabelID = nil
		fields["label_id"] = nil
	case patch.LabelID != nil:
		if err := s.checkLabel(ctx, *patch.LabelID, media.ProjectID); err != nil {
			return nil, err
		}
		annotation.LabelID = patch.LabelID
		fields["label_id"] = *patch.LabelID
	}
	if patch.AnnotationType != nil {
		t, err := parseType(*patch.AnnotationType)
		if err != nil {
			return nil, err
		}
		annotation.AnnotationType = t
		fields["annotation_type"] = t
	}
	if patch.Payload != nil {
		annotation.Payload = patch.Payload
		fields["payload"] = patch.Payload
	}
	if patch.StartTime != nil {
		annotation.StartTime = patch.StartTime
		fields["start_time"] = *patch.StartTime
	}
	if patch.EndTime != nil {
		annotation.EndTime = patch.EndTime
		fields["end_time"] = *patch.EndTime
	}
	if patch.Confidence != nil {
		annotation.Confidence = *patch.Confidence
		fields["confidence"] = *patch.Confidence
	}
	if len(fields) == 0 {
		return annotation, nil
	}

	// Validate the merged state so a partial range update cannot invert it
	if err := validate(annotation, media); err != nil {
		return nil, err
	}
	if patch.StartTime != nil || patch.EndTime != nil {
		fields["out_of_range"] = media.Duration != nil && annotation.ExceedsDuration(*media.Duration)
	}

	if err := s.repository.UpdateAnnotation(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.repository.GetAnnotationByID(ctx, id)
}

func (s *ServiceImpl) Delete(ctx context.Context, subject authz.Subject, id uint) error {
	if _, _, err := s.load(ctx, subject, id, authz.ActionWrite); err != nil {
		return err
	}
	if err := s.repository.DeleteAnnotation(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("Annotation deleted", zap.Uint("annotation_id", id), zap.Uint("by", subject.UserID))
	return nil
}

func (s *ServiceImpl) Review(ctx context.Context, subject authz.Subject, id uint, decision string, comment *string) (*models.Annotation, error) {
	status, ok := models.ParseReviewStatus(decision)
	if !ok {
		return nil, apperrors.ValidationError("status", "must be approved or rejected")
	}

	annotation, _, err := s.load(ctx, subject, id, authz.ActionReview)
	if err != nil {
		return nil, err
	}
	previous := annotation.Status

	if err := s.repository.ApplyReview(ctx, id, status, subject.UserID, comment); err != nil {
		return nil, err
	}
	reviewed, err := s.repository.GetAnnotationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Annotation reviewed",
		zap.Uint("annotation_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
		zap.Uint("reviewer_id", subject.UserID))

	events.PublishBestEffort(ctx, s.publisher, s.logger, events.New(events.TypeAnnotationReviewed, id, map[string]interface{}{
		"media_file_id":   reviewed.MediaFileID,
		"annotator_id":    reviewed.AnnotatorID,
		"reviewer_id":     subject.UserID,
		"previous_status": previous,
		"status":          status,
	}))
	return reviewed, nil
}

func (s *ServiceImpl) FlagOutOfRange(ctx context.Context, mediaID uint, duration float64) (int64, error) {
	flagged, err := s.repository.FlagOutOfRange(ctx, mediaID, duration)
	if err != nil {
		return 0, err
	}
	if flagged > 0 {
		s.logger.Warn("Annotations extend past media duration",
			zap.Uint("media_id", mediaID),
			zap.Float64("duration", duration),
			zap.Int64("count", flagged))
	}
	return flagged, nil
}

// load fetches an annotation and its media file and checks action on it
func (s *ServiceImpl) load(ctx context.Context, subject authz.Subject, id uint, action authz.Action) (*models.Annotation, *models.MediaFile, error) {
	annotation, err := s.repository.GetAnnotationByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	media, err := s.repository.GetMediaByID(ctx, annotation.MediaFileID)
	if err != nil {
		return nil, nil, err
	}
	resource := authz.Annotation(media.ProjectID, annotation.AnnotatorID)
	if err := s.engine.RequireAccess(ctx, subject, resource, action); err != nil {
		return nil, nil, err
	}
	return annotation, media, nil
}

func (s *ServiceImpl) checkLabel(ctx context.Context, labelID, projectID uint) error {
	label, err := s.repository.GetLabelByID(ctx, labelID)
	if err != nil {
		return err
	}
	if label.ProjectID != projectID {
		return apperrors.ValidationError("label_id", "label belongs to another project")
	}
	return nil
}

func parseType(s string) (models.AnnotationType, error) {
	t := models.AnnotationType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return "", apperrors.MissingFieldError("annotation_type")
	}
	if !t.Valid() {
		return "", apperrors.ValidationError("annotation_type", fmt.Sprintf("unknown annotation type %q", s))
	}
	return t, nil
}

// validate checks confidence and the time range. The range is checked
// against the media duration only when the probe has already run; older
// annotations are re-checked by FlagOutOfRange.
func validate(a *models.Annotation, media *models.MediaFile) error {
	if a.Confidence < 0 || a.Confidence > 1 {
		return apperrors.ValidationError("confidence", "must be between 0 and 1")
	}
	if a.StartTime != nil && *a.StartTime < 0 {
		return apperrors.ValidationError("start_time", "must be non-negative")
	}
	if a.EndTime != nil && *a.EndTime < 0 {
		return apperrors.ValidationError("end_time", "must be non-negative")
	}
	if a.StartTime != nil && a.EndTime != nil && *a.StartTime > *a.EndTime {
		return apperrors.ValidationError("end_time", "start time must not be after end time")
	}
	if media.Duration != nil && a.ExceedsDuration(*media.Duration) {
		return apperrors.ValidationError("end_time", fmt.Sprintf("time range exceeds media duration %g", *media.Duration))
	}
	return nil
}
