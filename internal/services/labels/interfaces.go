package labels

import (
	"context"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
)

// Repository defines the interface for label data access
type Repository interface {
	CreateLabel(ctx context.Context, label *models.Label) error
	GetLabelByID(ctx context.Context, id uint) (*models.Label, error)
	ListByProject(ctx context.Context, projectID uint) ([]models.Label, error)
	UpdateLabel(ctx context.Context, id uint, fields map[string]any) error
	DeleteLabel(ctx context.Context, id uint) error
	CountChildren(ctx context.Context, id uint) (int64, error)
	ProjectExists(ctx context.Context, projectID uint) (bool, error)
}

// Service defines the interface for label tree management
type Service interface {
	Create(ctx context.Context, subject authz.Subject, projectID uint, input CreateInput) (*models.Label, error)
	Get(ctx context.Context, subject authz.Subject, id uint) (*models.Label, error)
	List(ctx context.Context, subject authz.Subject, projectID uint) ([]models.Label, error)
	Tree(ctx context.Context, subject authz.Subject, projectID uint) ([]*Node, error)
	Update(ctx context.Context, subject authz.Subject, id uint, input UpdateInput) (*models.Label, error)
	Delete(ctx context.Context, subject authz.Subject, id uint) error
}

// CreateInput carries the fields for a new label
type CreateInput struct {
	Name       string
	Color      string
	ParentID   *uint
	Attributes models.JSONMap
}

// UpdateInput is a partial update. ClearParent moves the label to the root.
type UpdateInput struct {
	Name        *string
	Color       *string
	ParentID    *uint
	ClearParent bool
	Attributes  models.JSONMap
}

// Node is a label with its children
type Node struct {
	models.Label
	Children []*Node `json:"children"`
}
