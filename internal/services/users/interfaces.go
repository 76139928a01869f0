package users

import (
	"context"

	"github.com/killallgit/annotation-api/internal/models"
)

// Repository defines the interface for user data access
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
}

// Service defines the interface for account management
type Service interface {
	// Register creates an annotator account
	Register(ctx context.Context, input CreateInput) (*models.User, error)
	// Create creates an account with an explicit role
	Create(ctx context.Context, input CreateInput) (*models.User, error)
	// Authenticate verifies credentials and returns the active user
	Authenticate(ctx context.Context, username, password string) (*models.User, error)

	GetByID(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	SetRole(ctx context.Context, id uint, role models.Role) (*models.User, error)
	SetActive(ctx context.Context, id uint, active bool) (*models.User, error)
}

// CreateInput carries the fields for a new account
type CreateInput struct {
	Username string
	Email    string
	Password string
	Role     models.Role
}
