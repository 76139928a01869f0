package projects

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

// NewRepository creates a new project repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateProject(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return apperrors.DatabaseError("create project", err)
	}
	return nil
}

func (r *RepositoryImpl) GetProjectByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project", id)
		}
		return nil, apperrors.DatabaseError("get project", err)
	}
	return &project, nil
}

func (r *RepositoryImpl) ListProjects(ctx context.Context, ids []uint, all bool, offset, limit int) ([]models.Project, int64, error) {
	var (
		projects []models.Project
		total    int64
	)
	if !all && len(ids) == 0 {
		return []models.Project{}, 0, nil
	}

	q := r.db.WithContext(ctx).Model(&models.Project{})
	if !all {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("count projects", err)
	}
	if err := q.Order("id").Offset(offset).Limit(limit).Find(&projects).Error; err != nil {
		return nil, 0, apperrors.DatabaseError("list projects", err)
	}
	return projects, total, nil
}

func (r *RepositoryImpl) UpdateProject(ctx context.Context, id uint, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return apperrors.DatabaseError("update project", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("project", id)
	}
	return nil
}

func (r *RepositoryImpl) DeleteProject(ctx context.Context, id uint) ([]models.MediaFile, error) {
	var files []models.MediaFile

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Find(&files).Error; err != nil {
			return err
		}
		mediaIDs := tx.Model(&models.MediaFile{}).Select("id").Where("project_id = ?", id)

		if err := tx.Where("media_file_id IN (?)", mediaIDs).Delete(&models.Annotation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("media_file_id IN (?)", mediaIDs).Delete(&models.VideoSegment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.MediaFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Label{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectMembership{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project", id)
		}
		return nil, apperrors.DatabaseError("delete project", err)
	}
	return files, nil
}

func (r *RepositoryImpl) AddMember(ctx context.Context, membership *models.ProjectMembership) error {
	if err := r.db.WithContext(ctx).Create(membership).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("membership", "user is already a member of this project")
		}
		return apperrors.DatabaseError("add member", err)
	}
	return nil
}

func (r *RepositoryImpl) ListMembers(ctx context.Context, projectID uint) ([]models.ProjectMembership, error) {
	var members []models.ProjectMembership
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("project_id = ?", projectID).
		Order("id").
		Find(&members).Error
	if err != nil {
		return nil, apperrors.DatabaseError("list members", err)
	}
	return members, nil
}

func (r *RepositoryImpl) UpdateMemberRole(ctx context.Context, projectID, userID uint, role models.Role) error {
	result := r.db.WithContext(ctx).Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Update("role", role)
	if result.Error != nil {
		return apperrors.DatabaseError("update member", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("membership", userID)
	}
	return nil
}

func (r *RepositoryImpl) RemoveMember(ctx context.Context, projectID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMembership{})
	if result.Error != nil {
		return apperrors.DatabaseError("remove member", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("membership", userID)
	}
	return nil
}

func (r *RepositoryImpl) UserExists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, apperrors.DatabaseError("get user", err)
	}
	return count > 0, nil
}
