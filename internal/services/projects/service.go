package projects

import (
	"context"
	"strings"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/media"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/storage"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	engine     *authz.Engine
	store      storage.ObjectStore
	logger     *zap.Logger
}

// NewService creates a new project service. store may be nil, in which case
// objects of deleted projects are left in place.
func NewService(repository Repository, engine *authz.Engine, store storage.ObjectStore, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceImpl{
		repository: repository,
		engine:     engine,
		store:      store,
		logger:     logger.Named("projects"),
	}
}

func (s *ServiceImpl) Create(ctx context.Context, subject authz.Subject, input CreateInput) (*models.Project, error) {
	if err := s.engine.RequireAccess(ctx, subject, authz.Global(), authz.ActionCreateProject); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.MissingFieldError("name")
	}
	if len(name) > 255 {
		return nil, apperrors.ValidationError("name", "must be at most 255 characters")
	}

	project := &models.Project{
		Name:        name,
		Description: input.Description,
		OwnerID:     subject.UserID,
		IsActive:    true,
	}
	if err := s.repository.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("Project created", zap.Uint("project_id", project.ID), zap.Uint("owner_id", subject.UserID))
	return project, nil
}

func (s *ServiceImpl) Get(ctx context.Context, subject authz.Subject, id uint) (*models.Project, error) {
	project, err := s.repository.GetProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(id), authz.ActionRead); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ServiceImpl) List(ctx context.Context, subject authz.Subject, offset, limit int) ([]models.Project, int64, error) {
	ids, all, err := s.engine.VisibleProjectIDs(ctx, subject)
	if err != nil {
		return nil, 0, err
	}
	offset, limit = normalizePage(offset, limit)
	return s.repository.ListProjects(ctx, ids, all, offset, limit)
}

func (s *ServiceImpl) Update(ctx context.Context, subject authz.Subject, id uint, input UpdateInput) (*models.Project, error) {
	if _, err := s.repository.GetProjectByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(id), authz.ActionManage); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.ValidationError("name", "must not be empty")
		}
		fields["name"] = name
	}
	if input.Description != nil {
		fields["description"] = *input.Description
	}
	if input.IsActive != nil {
		fields["is_active"] = *input.IsActive
	}
	if len(fields) > 0 {
		if err := s.repository.UpdateProject(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.repository.GetProjectByID(ctx, id)
}

// Delete removes the project with its memberships, labels, media, segments
// and annotations. Stored objects are removed after the commit.
func (s *ServiceImpl) Delete(ctx context.Context, subject authz.Subject, id uint) error {
	if _, err := s.repository.GetProjectByID(ctx, id); err != nil {
		return err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(id), authz.ActionManage); err != nil {
		return err
	}

	files, err := s.repository.DeleteProject(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("Project deleted", zap.Uint("project_id", id), zap.Int("media_files", len(files)))

	if s.store != nil {
		media.PurgeObjects(ctx, s.store, s.logger, files...)
		if err := s.store.Delete(ctx, media.ExportKey(id)); err != nil {
			s.logger.Warn("Failed to delete project export", zap.Uint("project_id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *ServiceImpl) AddMember(ctx context.Context, subject authz.Subject, projectID, userID uint, role models.Role) (*models.ProjectMembership, error) {
	if _, err := s.repository.GetProjectByID(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionManage); err != nil {
		return nil, err
	}

	if role == "" {
		role = models.RoleAnnotator
	}
	if err := validateMemberRole(role); err != nil {
		return nil, err
	}

	exists, err := s.repository.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("user", userID)
	}

	membership := &models.ProjectMembership{ProjectID: projectID, UserID: userID, Role: role}
	if err := s.repository.AddMember(ctx, membership); err != nil {
		return nil, err
	}

	s.logger.Info("Member added",
		zap.Uint("project_id", projectID), zap.Uint("user_id", userID), zap.String("role", string(role)))
	return membership, nil
}

func (s *ServiceImpl) ListMembers(ctx context.Context, subject authz.Subject, projectID uint) ([]models.ProjectMembership, error) {
	if _, err := s.repository.GetProjectByID(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionRead); err != nil {
		return nil, err
	}
	return s.repository.ListMembers(ctx, projectID)
}

func (s *ServiceImpl) UpdateMemberRole(ctx context.Context, subject authz.Subject, projectID, userID uint, role models.Role) error {
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionManage); err != nil {
		return err
	}
	if err := validateMemberRole(role); err != nil {
		return err
	}
	return s.repository.UpdateMemberRole(ctx, projectID, userID, role)
}

func (s *ServiceImpl) RemoveMember(ctx context.Context, subject authz.Subject, projectID, userID uint) error {
	if err := s.engine.RequireAccess(ctx, subject, authz.Project(projectID), authz.ActionManage); err != nil {
		return err
	}
	return s.repository.RemoveMember(ctx, projectID, userID)
}

// validateMemberRole rejects admin, which is only a global role
func validateMemberRole(role models.Role) error {
	if !role.Valid() || role == models.RoleAdmin {
		return apperrors.ValidationError("role", "must be project_manager, reviewer or annotator")
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
