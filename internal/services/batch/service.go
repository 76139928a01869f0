// Package batch implements project-wide annotation jobs: export, statistics,
// batch review and retention cleanup. Request* methods run on the HTTP path
// and only authorize and enqueue; the rest run inside annotation queue workers.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/services/media"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service runs batch operations over a project's annotations
type Service struct {
	db         *gorm.DB
	engine     *authz.Engine
	dispatcher Dispatcher
	store      storage.ObjectStore
	logger     *zap.Logger
}

// NewService creates a batch service
func NewService(db *gorm.DB, engine *authz.Engine, dispatcher Dispatcher, store storage.ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         db,
		engine:     engine,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.Named("batch"),
	}
}

// RequestExport queues an export of the project's annotations
func (s *Service) RequestExport(ctx context.Context, subject authz.Subject, projectID uint) (*models.Job, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionRead); err != nil {
		return nil, err
	}
	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeAnnotationExport,
		models.JobPayload{"project_id": projectID, "format": "json"}, projectID,
		jobs.WithCreatedBy(createdBy(subject)))
}

// RequestStatistics queues a statistics run for the project
func (s *Service) RequestStatistics(ctx context.Context, subject authz.Subject, projectID uint) (*models.Job, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionRead); err != nil {
		return nil, err
	}
	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeAnnotationStatistics,
		models.JobPayload{"project_id": projectID}, projectID,
		jobs.WithCreatedBy(createdBy(subject)))
}

// RequestBatchReview queues a review decision for every pending annotation
func (s *Service) RequestBatchReview(ctx context.Context, subject authz.Subject, projectID uint, status string, comment *string) (*models.Job, error) {
	decision, ok := models.ParseReviewStatus(status)
	if !ok {
		return nil, apperrors.ValidationError("status", "must be approved or rejected")
	}
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionReview); err != nil {
		return nil, err
	}

	payload := models.JobPayload{
		"project_id":  projectID,
		"status":      string(decision),
		"reviewer_id": subject.UserID,
	}
	if comment != nil {
		payload["comment"] = *comment
	}
	return s.dispatcher.Enqueue(ctx, models.JobTypeAnnotationBatchReview, payload,
		jobs.WithCreatedBy(createdBy(subject)))
}

// RequestCleanup queues deletion of old rejected annotations. Admin only.
func (s *Service) RequestCleanup(ctx context.Context, subject authz.Subject, days int) (*models.Job, error) {
	if err := s.engine.RequireAccess(ctx, subject, authz.Global(), authz.ActionManage); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, apperrors.ValidationError("days", "must be positive")
	}
	return s.dispatcher.EnqueueUnique(ctx, models.JobTypeAnnotationCleanup,
		models.JobPayload{"days": days}, days,
		jobs.WithCreatedBy(createdBy(subject)))
}

// Export assembles every annotation of a project with its label
func (s *Service) Export(ctx context.Context, projectID uint) (*ExportDocument, error) {
	project, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var labels []models.Label
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&labels).Error; err != nil {
		return nil, apperrors.DatabaseError("list labels", err)
	}
	byID := make(map[uint]*ExportLabel, len(labels))
	for _, l := range labels {
		byID[l.ID] = &ExportLabel{ID: l.ID, Name: l.Name, Color: l.Color}
	}

	var list []models.Annotation
	err = s.projectAnnotations(ctx, s.db, projectID).
		Order("annotations.id").
		Find(&list).Error
	if err != nil {
		return nil, apperrors.DatabaseError("list annotations", err)
	}

	doc := &ExportDocument{
		Project: ExportProject{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
		},
		ExportTime:  time.Now().UTC(),
		Format:      "json",
		Annotations: make([]ExportAnnotation, 0, len(list)),
	}
	for _, a := range list {
		entry := ExportAnnotation{
			ID:             a.ID,
			MediaFileID:    a.MediaFileID,
			AnnotatorID:    a.AnnotatorID,
			AnnotationType: a.AnnotationType,
			Data:           a.Payload,
			StartTime:      a.StartTime,
			EndTime:        a.EndTime,
			Confidence:     a.Confidence,
			Status:         a.Status,
			OutOfRange:     a.OutOfRange,
			CreatedAt:      a.CreatedAt,
			UpdatedAt:      a.UpdatedAt,
		}
		if a.LabelID != nil {
			entry.Label = byID[*a.LabelID]
		}
		doc.Annotations = append(doc.Annotations, entry)
	}
	return doc, nil
}

// WriteExport builds the export and stores it at the project's export key,
// replacing any earlier export
func (s *Service) WriteExport(ctx context.Context, projectID uint) (*ExportResult, error) {
	doc, err := s.Export(ctx, projectID)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode export")
	}
	key := media.ExportKey(projectID)
	if err := s.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return nil, apperrors.UpstreamFailure("object_store", err)
	}

	s.logger.Info("Export written",
		zap.Uint("project_id", projectID),
		zap.String("key", key),
		zap.Int("annotations", len(doc.Annotations)))
	return &ExportResult{Key: key, AnnotationCount: len(doc.Annotations)}, nil
}

type bucket struct {
	Name  string
	Count int64
}

type labelBucket struct {
	LabelID *uint
	Count   int64
}

// Statistics counts a project's annotations by status, type and label
func (s *Service) Statistics(ctx context.Context, projectID uint) (*Statistics, error) {
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}

	stats := &Statistics{
		ProjectID:          projectID,
		StatusDistribution: map[string]int64{},
		TypeDistribution:   map[string]int64{},
		LabelDistribution:  map[string]int64{},
		GeneratedAt:        time.Now().UTC(),
	}

	if err := s.projectAnnotations(ctx, s.db, projectID).Count(&stats.TotalAnnotations).Error; err != nil {
		return nil, apperrors.DatabaseError("count annotations", err)
	}

	var byStatus []bucket
	err := s.projectAnnotations(ctx, s.db, projectID).
		Select("annotations.status AS name, COUNT(*) AS count").
		Group("annotations.status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, apperrors.DatabaseError("group annotations by status", err)
	}
	for _, b := range byStatus {
		stats.StatusDistribution[b.Name] = b.Count
	}

	var byType []bucket
	err = s.projectAnnotations(ctx, s.db, projectID).
		Select("annotations.annotation_type AS name, COUNT(*) AS count").
		Group("annotations.annotation_type").
		Scan(&byType).Error
	if err != nil {
		return nil, apperrors.DatabaseError("group annotations by type", err)
	}
	for _, b := range byType {
		stats.TypeDistribution[b.Name] = b.Count
	}

	var byLabel []labelBucket
	err = s.projectAnnotations(ctx, s.db, projectID).
		Select("annotations.label_id AS label_id, COUNT(*) AS count").
		Group("annotations.label_id").
		Scan(&byLabel).Error
	if err != nil {
		return nil, apperrors.DatabaseError("group annotations by label", err)
	}

	var labels []models.Label
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&labels).Error; err != nil {
		return nil, apperrors.DatabaseError("list labels", err)
	}
	names := make(map[uint]string, len(labels))
	for _, l := range labels {
		names[l.ID] = l.Name
	}
	for _, b := range byLabel {
		stats.LabelDistribution[labelName(b.LabelID, names)] += b.Count
	}

	return stats, nil
}

func labelName(id *uint, names map[uint]string) string {
	if id == nil {
		return "unlabeled"
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return fmt.Sprintf("Label_%d", *id)
}

// BatchReview applies one decision to every pending annotation of the project
// in a single transaction. Any failed write rolls back all of them and the
// returned count is 0.
func (s *Service) BatchReview(ctx context.Context, projectID uint, status string, comment *string, reviewerID uint) (int64, error) {
	decision, ok := models.ParseReviewStatus(status)
	if !ok {
		return 0, apperrors.ValidationError("status", "must be approved or rejected")
	}
	if _, err := s.project(ctx, projectID); err != nil {
		return 0, err
	}

	var updated int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		err := s.projectAnnotations(ctx, tx, projectID).
			Where("annotations.status = ?", models.AnnotationStatusPending).
			Order("annotations.id").
			Pluck("annotations.id", &ids).Error
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, id := range ids {
			result := tx.Model(&models.Annotation{}).Where("id = ?", id).Updates(map[string]any{
				"status":         decision,
				"reviewer_id":    reviewerID,
				"review_comment": comment,
				"updated_at":     now,
			})
			if result.Error != nil {
				return fmt.Errorf("annotation %d: %w", id, result.Error)
			}
			updated += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Batch review rolled back",
			zap.Uint("project_id", projectID),
			zap.String("status", string(decision)),
			zap.Error(err))
		return 0, apperrors.DatabaseError("batch review", err)
	}

	s.logger.Info("Batch review applied",
		zap.Uint("project_id", projectID),
		zap.String("status", string(decision)),
		zap.Int64("updated", updated))
	return updated, nil
}

// Cleanup deletes rejected annotations created more than days ago and
// returns the count and the cutoff used
func (s *Service) Cleanup(ctx context.Context, days int) (int64, time.Time, error) {
	if days <= 0 {
		return 0, time.Time{}, apperrors.ValidationError("days", "must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result := s.db.WithContext(ctx).
		Where("created_at < ? AND status = ?", cutoff, models.AnnotationStatusRejected).
		Delete(&models.Annotation{})
	if result.Error != nil {
		return 0, cutoff, apperrors.DatabaseError("cleanup annotations", result.Error)
	}

	s.logger.Info("Old rejected annotations removed",
		zap.Int("days", days),
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", result.RowsAffected))
	return result.RowsAffected, cutoff, nil
}

func (s *Service) project(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project", id)
		}
		return nil, apperrors.DatabaseError("get project", err)
	}
	return &project, nil
}

func (s *Service) projectAnnotations(ctx context.Context, db *gorm.DB, projectID uint) *gorm.DB {
	return db.WithContext(ctx).Model(&models.Annotation{}).
		Joins("JOIN media_files ON media_files.id = annotations.media_file_id").
		Where("media_files.project_id = ?", projectID)
}

func createdBy(subject authz.Subject) string {
	return fmt.Sprintf("user:%d", subject.UserID)
}
