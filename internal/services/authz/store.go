package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/annotation-api/internal/models"
	"gorm.io/gorm"
)

type gormLookup struct {
	db *gorm.DB
}

// NewGormLookup creates a MembershipLookup backed by the projects tables
func NewGormLookup(db *gorm.DB) MembershipLookup {
	return &gormLookup{db: db}
}

func (l *gormLookup) ProjectOwner(ctx context.Context, projectID uint) (uint, error) {
	var project models.Project
	err := l.db.WithContext(ctx).Select("id", "owner_id").First(&project, projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProjectNotFound
		}
		return 0, fmt.Errorf("getting project owner: %w", err)
	}
	return project.OwnerID, nil
}

func (l *gormLookup) GetMembership(ctx context.Context, projectID, userID uint) (*models.ProjectMembership, error) {
	var membership models.ProjectMembership
	err := l.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting membership: %w", err)
	}
	return &membership, nil
}

func (l *gormLookup) AccessibleProjectIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := l.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("owner_id = ? OR id IN (?)", userID,
			l.db.Model(&models.ProjectMembership{}).Select("project_id").Where("user_id = ?", userID)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing accessible projects: %w", err)
	}
	return ids, nil
}
