package users

import (
	"context"
	"net/mail"
	"strings"

	"github.com/killallgit/annotation-api/internal/models"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/security"
	"go.uber.org/zap"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 50
	defaultPageSize   = 50
	maxPageSize       = 200
)

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	hasher     *security.ArgonHash
	logger     *zap.Logger
}

// NewService creates a new user service
func NewService(repository Repository, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceImpl{
		repository: repository,
		hasher:     security.New(),
		logger:     logger.Named("users"),
	}
}

// Register creates an annotator account regardless of the requested role
func (s *ServiceImpl) Register(ctx context.Context, input CreateInput) (*models.User, error) {
	input.Role = models.RoleAnnotator
	return s.Create(ctx, input)
}

// Create validates input, hashes the password and stores the account
func (s *ServiceImpl) Create(ctx context.Context, input CreateInput) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Role == "" {
		input.Role = models.RoleAnnotator
	}

	if err := validateInput(input); err != nil {
		return nil, err
	}

	exists, err := s.repository.ExistsByUsernameOrEmail(ctx, input.Username, input.Email)
	if err != nil {
		return nil, apperrors.DatabaseError("check user", err)
	}
	if exists {
		return nil, apperrors.Conflict("user", "username or email already registered")
	}

	hash, err := s.hasher.GenerateFromPassword(input.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "hashing password")
	}

	user := &models.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     true,
	}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Authenticate returns the same error for unknown users and wrong passwords
func (s *ServiceImpl) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	invalid := apperrors.Unauthenticated("invalid username or password")

	user, err := s.repository.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}

	ok, err := s.hasher.VerifyPasswd(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, invalid
	}
	if !user.IsActive {
		return nil, apperrors.Unauthenticated("account is disabled")
	}
	return user, nil
}

func (s *ServiceImpl) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.repository.GetUserByID(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	offset, limit = normalizePage(offset, limit)
	return s.repository.ListUsers(ctx, offset, limit)
}

func (s *ServiceImpl) SetRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationError("role", "unknown role")
	}
	if err := s.repository.UpdateFields(ctx, id, map[string]any{"role": role}); err != nil {
		return nil, err
	}
	s.logger.Info("User role changed", zap.Uint("user_id", id), zap.String("role", string(role)))
	return s.repository.GetUserByID(ctx, id)
}

func (s *ServiceImpl) SetActive(ctx context.Context, id uint, active bool) (*models.User, error) {
	if err := s.repository.UpdateFields(ctx, id, map[string]any{"is_active": active}); err != nil {
		return nil, err
	}
	return s.repository.GetUserByID(ctx, id)
}

func validateInput(input CreateInput) error {
	if len(input.Username) < 3 || len(input.Username) > maxUsernameLength {
		return apperrors.ValidationError("username", "must be between 3 and 50 characters")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return apperrors.ValidationError("email", "must be a valid address")
	}
	if len(input.Password) < minPasswordLength {
		return apperrors.ValidationError("password", "must be at least 8 characters")
	}
	if !input.Role.Valid() {
		return apperrors.ValidationError("role", "unknown role")
	}
	return nil
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}
