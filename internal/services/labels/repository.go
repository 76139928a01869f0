package labels

import (
	"context"
	"errors"

	"github.com/killallgit/annotation-api/internal/models"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"gorm.io/gorm"
)

// RepositoryImpl implements the Repository interface
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new label repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateLabel(ctx context.Context, label *models.Label) error {
	if err := r.db.WithContext(ctx).Create(label).Error; err != nil {
		return apperrors.DatabaseError("create label", err)
	}
	return nil
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

func (r *RepositoryImpl) ListByProject(ctx context.Context, projectID uint) ([]models.Label, error) {
	var labels []models.Label
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id").Find(&labels).Error; err != nil {
		return nil, apperrors.DatabaseError("list labels", err)
	}
	return labels, nil
}

func (r *RepositoryImpl) UpdateLabel(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.Label{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return apperrors.DatabaseError("update label", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("label", id)
	}
	return nil
}

func (r *RepositoryImpl) DeleteLabel(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Label{}, id)
	if result.Error != nil {
		return apperrors.DatabaseError("delete label", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("label", id)
	}
	return nil
}

func (r *RepositoryImpl) CountChildren(ctx context.Context, id uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Label{}).Where("parent_id = ?", id).Count(&count).Error; err != nil {
		return 0, apperrors.DatabaseError("count labels", err)
	}
	return count, nil
}

func (r *RepositoryImpl) ProjectExists(ctx context.Context, projectID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return false, apperrors.DatabaseError("get project", err)
	}
	return count > 0, nil
}
