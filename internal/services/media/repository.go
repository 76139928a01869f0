package media

import (
	"context"
	"errors"

	"github.com/killallgit/annotation-api/internal/models"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositoryImpl implements the Repository interface
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new media repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateMedia(ctx context.Context, media *models.MediaFile) error {
	if err := r.db.WithContext(ctx).Create(media).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("media", "storage key already in use")
		}
		return apperrors.DatabaseError("create media", err)
	}
	return nil
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

func (r *RepositoryImpl) ListMedia(ctx context.Context, filter ListFilter, projectIDs []uint, all bool) ([]models.MediaFile, int64, error) {
	var (
		files []models.MediaFile
		total int64
	)

	q := r.db.WithContext(ctx).Model(&models.MediaFile{})
	switch {
	case filter.ProjectID != nil:
		q = q.Where("project_id = ?", *filter.ProjectID)
	case !all:
		if len(projectIDs) == 0 {
			return []models.MediaFile{}, 0, nil
		}
		q = q.Where("project_id IN ?", projectIDs)
	}
	if filter.MediaType != "" {
		q = q.Where("media_type = ?", filter.MediaType)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("count media", err)
	}
	if err := q.Order("created_at DESC, id DESC").Offset(filter.Skip).Limit(filter.Limit).Find(&files).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("list media", err)
	}
	return files, total, nil
}

// DeleteMedia removes the row with its annotations and segments and returns
// the deleted row so the caller can purge its objects.
func (r *RepositoryImpl) DeleteMedia(ctx context.Context, id uint) (*models.MediaFile, error) {
	var media models.MediaFile

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&media, id).Error; err != nil {
			return err
		}
		if err := tx.Where("media_file_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("media_file_id = ?", id).Delete(&models.VideoSegment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.MediaFile{}, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("media", id)
		}
		return nil, apperrors.DatabaseError("delete media", err)
	}
	return &media, nil
}

// UpdateDerived overwrites the probe results in a single statement
func (r *RepositoryImpl) UpdateDerived(ctx context.Context, id uint, duration float64, metadata models.JSONMap) error {
	result := r.db.WithContext(ctx).Model(&models.MediaFile{}).Where("id = ?", id).Updates(map[string]any{
		"duration":         duration,
		"derived_metadata": metadata,
	})
	if result.Error != nil {
		return apperrors.DatabaseError("update derived media fields", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("media", id)
	}
	return nil
}

// UpsertSegment converges on one row per (media, start, end)
func (r *RepositoryImpl) UpsertSegment(ctx context.Context, segment *models.VideoSegment) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "media_file_id"}, {Name: "start_time"}, {Name: "end_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_key", "created_by"}),
	}).Create(segment).Error
	if err != nil {
		return apperrors.DatabaseError("upsert segment", err)
	}

	var stored models.VideoSegment
	err = r.db.WithContext(ctx).
		Where("media_file_id = ? AND start_time = ? AND end_time = ?", segment.MediaFileID, segment.StartTime, segment.EndTime).
		First(&stored).Error
	if err != nil {
		return apperrors.DatabaseError("reload segment", err)
	}
	*segment = stored
	return nil
}

func (r *RepositoryImpl) ListSegments(ctx context.Context, mediaID uint) ([]models.VideoSegment, error) {
	var segments []models.VideoSegment
	if err := r.db.WithContext(ctx).Where("media_file_id = ?", mediaID).Order("start_time, end_time").Find(&segments).Error; err != nil {
		return nil, apperrors.DatabaseError("list segments", err)
	}
	return segments, nil
}

func (r *RepositoryImpl) ProjectExists(ctx context.Context, projectID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return false, apperrors.DatabaseError("check project", err)
	}
	return count > 0, nil
}
