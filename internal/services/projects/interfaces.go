package projects

import (
	"context"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
)

// Repository defines the interface for project data access
type Repository interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByID(ctx context.Context, id uint) (*models.Project, error)
	ListProjects(ctx context.Context, ids []uint, all bool, offset, limit int) ([]models.Project, int64, error)
	UpdateProject(ctx context.Context, id uint, fields map[string]any) error
	// DeleteProject removes the project and everything beneath it in one
	// transaction and returns the media rows that were removed
	DeleteProject(ctx context.Context, id uint) ([]models.MediaFile, error)

	AddMember(ctx context.Context, membership *models.ProjectMembership) error
	ListMembers(ctx context.Context, projectID uint) ([]models.ProjectMembership, error)
	UpdateMemberRole(ctx context.Context, projectID, userID uint, role models.Role) error
	RemoveMember(ctx context.Context, projectID, userID uint) error
	UserExists(ctx context.Context, userID uint) (bool, error)
}

// Service defines the interface for project management
type Service interface {
	Create(ctx context.Context, subject authz.Subject, input CreateInput) (*models.Project, error)
	Get(ctx context.Context, subject authz.Subject, id uint) (*models.Project, error)
	List(ctx context.Context, subject authz.Subject, offset, limit int) ([]models.Project, int64, error)
	Update(ctx context.Context, subject authz.Subject, id uint, input UpdateInput) (*models.Project, error)
	Delete(ctx context.Context, subject authz.Subject, id uint) error

	AddMember(ctx context.Context, subject authz.Subject, projectID, userID uint, role models.Role) (*models.ProjectMembership, error)
	ListMembers(ctx context.Context, subject authz.Subject, projectID uint) ([]models.ProjectMembership, error)
	UpdateMemberRole(ctx context.Context, subject authz.Subject, projectID, userID uint, role models.Role) error
	RemoveMember(ctx context.Context, subject authz.Subject, projectID, userID uint) error
}

// CreateInput carries the fields for a new project
type CreateInput struct {
	Name        string
	Description string
}

// UpdateInput is a partial update, nil fields are left unchanged
type UpdateInput struct {
	Name        *string
	Description *string
	IsActive    *bool
}
