package annotations

import (
	"context"
	"errors"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"gorm.io/gorm"
)

// RepositoryImpl implements the Repository interface
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new annotation repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// CreateAnnotation creates a new annotation in the database
func (r *RepositoryImpl) CreateAnnotation(ctx context.Context, annotation *models.Annotation) error {
	if err := r.db.WithContext(ctx).Create(annotation).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return apperrors.NotFound("media", annotation.MediaFileID)
		}
		return apperrors.DatabaseError("create annotation", err)
	}
	return nil
}

// GetAnnotationByID retrieves an annotation by its ID
func (r *RepositoryImpl) GetAnnotationByID(ctx context.Context, id uint) (*models.Annotation, error) {
	var annotation models.Annotation
	if err := r.db.WithContext(ctx).First(&annotation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("annotation", id)
		}
		return nil, apperrors.DatabaseError("get annotation", err)
	}
	return &annotation, nil
}

// ListAnnotations returns one page of matching annotations and the total count
func (r *RepositoryImpl) ListAnnotations(ctx context.Context, query Query) ([]models.Annotation, int64, error) {
	var (
		list  []models.Annotation
		total int64
	)

	if query.Restrict && len(query.ProjectIDs) == 0 {
		return []models.Annotation{}, 0, nil
	}

	q := r.db.WithContext(ctx).Model(&models.Annotation{})
	if query.ProjectID != nil || query.Restrict {
		q = q.Joins("JOIN media_files ON media_files.id = annotations.media_file_id")
		if query.ProjectID != nil {
			q = q.Where("media_files.project_id = ?", *query.ProjectID)
		}
		if query.Restrict {
			q = q.Where("media_files.project_id IN ?", query.ProjectIDs)
		}
	}
	if query.MediaFileID != nil {
		q = q.Where("annotations.media_file_id = ?", *query.MediaFileID)
	}
	if query.AnnotationType != "" {
		q = q.Where("annotations.annotation_type = ?", query.AnnotationType)
	}
	if query.Status != "" {
		q = q.Where("annotations.status = ?", query.Status)
	}
	if query.VisibleTo != nil {
		q = q.Where("(annotations.annotator_id = ? OR annotations.status IN ?)",
			*query.VisibleTo, models.TerminalStatuses())
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("count annotations", err)
	}
	err := q.Select("annotations.*").
		Order("annotations.created_at DESC, annotations.id DESC").
		Offset(query.Skip).
		Limit(query.Limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, apperrors.DatabaseError("list annotations", err)
	}
	return list, total, nil
}

func (r *RepositoryImpl) GetMediaByID(ctx context.Context, id uint) (*models.MediaFile, error) {
	var media models.MediaFile
	if err := r.db.WithContext(ctx).First(&media, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("media", id)
		}
		return nil, apperrors.DatabaseError("get media", err)
	}
	return &media, nil
}

func (r *RepositoryImpl) GetLabelByID(ctx context.Context, id uint) (*models.Label, error) {
	var label models.Label
	if err := r.db.WithContext(ctx).First(&label, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("label", id)
		}
		return nil, apperrors.DatabaseError("get label", err)
	}
	return &label, nil
}

// UpdateAnnotation applies a column map and bumps updated_at
func (r *RepositoryImpl) UpdateAnnotation(ctx context.Context, id uint, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.Annotation{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return apperrors.DatabaseError("update annotation", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("annotation", id)
	}
	return nil
}

// ApplyReview writes a review decision regardless of the current status
func (r *RepositoryImpl) ApplyReview(ctx context.Context, id uint, status models.AnnotationStatus, reviewerID uint, comment *string) error {
	return r.UpdateAnnotation(ctx, id, map[string]any{
		"status":         status,
		"reviewer_id":    reviewerID,
		"review_comment": comment,
	})
}

// FlagOutOfRange sets out_of_range on annotations of mediaID that extend past
// duration and clears it on the rest, returning the number flagged
func (r *RepositoryImpl) FlagOutOfRange(ctx context.Context, mediaID uint, duration float64) (int64, error) {
	var flagged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Annotation{}).
			Where("media_file_id = ?", mediaID).
			Where("(start_time > ? OR end_time > ?)", duration, duration).
			Update("out_of_range", true)
		if result.Error != nil {
			return result.Error
		}
		flagged = result.RowsAffected

		return tx.Model(&models.Annotation{}).
			Where("media_file_id = ? AND out_of_range = ?", mediaID, true).
			Where("(start_time IS NULL OR start_time <= ?) AND (end_time IS NULL OR end_time <= ?)", duration, duration).
			Update("out_of_range", false).Error
	})
	if err != nil {
		return 0, apperrors.DatabaseError("flag out of range annotations", err)
	}
	return flagged, nil
}

// DeleteAnnotation deletes an annotation by its ID
func (r *RepositoryImpl) DeleteAnnotation(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Annotation{}, id)
	if result.Error != nil {
		return apperrors.DatabaseError("delete annotation", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("annotation", id)
	}
	return nil
}
