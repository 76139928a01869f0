package labels

import (
	"context"
	"regexp"
	"strings"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"go.uber.org/zap"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	engine     *authz.Engine
	logger     *zap.Logger
}

// NewService creates a new label service
func NewService(repository Repository, engine *authz.Engine, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceImpl{
		repository: repository,
		engine:     engine,
		logger:     logger.Named("labels"),
	}
}

func (s *ServiceImpl) Create(ctx context.Context, subject authz.Subject, projectID uint, input CreateInput) (*models.Label, error) {
	if err := s.requireProject(ctx, subject, projectID, authz.ActionWrite); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.MissingFieldError("name")
	}
	if len(name) > 100 {
		return nil, apperrors.ValidationError("name", "must be at most 100 characters")
	}
	color := input.Color
	if color == "" {
		color = models.DefaultLabelColor
	}
	if !colorPattern.MatchString(color) {
		return nil, apperrors.ValidationError("color", "must be a hex color like #FF0000")
	}

	if input.ParentID != nil {
		parent, err := s.repository.GetLabelByID(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ProjectID != projectID {
			return nil, apperrors.ValidationError("parent_id", "parent label belongs to another project")
		}
	}

	label := &models.Label{
		Name:       name,
		Color:      color,
		ProjectID:  projectID,
		ParentID:   input.ParentID,
		Attributes: input.Attributes,
	}
	if err := s.repository.CreateLabel(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

func (s *ServiceImpl) Get(ctx context.Context, subject authz.Subject, id uint) (*models.Label, error) {
	label, err := s.repository.GetLabelByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Label(label.ProjectID), authz.ActionRead); err != nil {
		return nil, err
	}
	return label, nil
}

func (s *ServiceImpl) List(ctx context.Context, subject authz.Subject, projectID uint) ([]models.Label, error) {
	if err := s.requireProject(ctx, subject, projectID, authz.ActionRead); err != nil {
		return nil, err
	}
	return s.repository.ListByProject(ctx, projectID)
}

func (s *ServiceImpl) Tree(ctx context.Context, subject authz.Subject, projectID uint) ([]*Node, error) {
	labels, err := s.List(ctx, subject, projectID)
	if err != nil {
		return nil, err
	}
	return BuildTree(labels), nil
}

func (s *ServiceImpl) Update(ctx context.Context, subject authz.Subject, id uint, input UpdateInput) (*models.Label, error) {
	label, err := s.repository.GetLabelByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Label(label.ProjectID), authz.ActionWrite); err != nil {
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
	if input.Color != nil {
		if !colorPattern.MatchString(*input.Color) {
			return nil, apperrors.ValidationError("color", "must be a hex color like #FF0000")
		}
		fields["color"] = *input.Color
	}
	if input.Attributes != nil {
		fields["attributes"] = input.Attributes
	}

	switch {
	case input.ClearParent:
		fields["parent_id"] = nil
	case input.ParentID != nil:
		if err := s.checkParent(ctx, label, *input.ParentID); err != nil {
			return nil, err
		}
		fields["parent_id"] = *input.ParentID
	}

	if len(fields) > 0 {
		if err := s.repository.UpdateLabel(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.repository.GetLabelByID(ctx, id)
}

// Delete refuses labels that still have children
func (s *ServiceImpl) Delete(ctx context.Context, subject authz.Subject, id uint) error {
	label, err := s.repository.GetLabelByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.RequireAccess(ctx, subject, authz.Label(label.ProjectID), authz.ActionWrite); err != nil {
		return err
	}

	children, err := s.repository.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return apperrors.Conflict("label", "label has child labels")
	}
	return s.repository.DeleteLabel(ctx, id)
}

// checkParent walks the ancestors of the new parent. Reaching label means the
// move would create a cycle.
func (s *ServiceImpl) checkParent(ctx context.Context, label *models.Label, parentID uint) error {
	if parentID == label.ID {
		return apperrors.ValidationError("parent_id", "label cannot be its own parent")
	}

	labels, err := s.repository.ListByProject(ctx, label.ProjectID)
	if err != nil {
		return err
	}
	parents := make(map[uint]*uint, len(labels))
	for _, l := range labels {
		parents[l.ID] = l.ParentID
	}

	if _, ok := parents[parentID]; !ok {
		if _, err := s.repository.GetLabelByID(ctx, parentID); err != nil {
			return err
		}
		return apperrors.ValidationError("parent_id", "parent label belongs to another project")
	}

	for cur, steps := &parentID, 0; cur != nil && steps <= len(parents); steps++ {
		if *cur == label.ID {
			return apperrors.ValidationError("parent_id", "move would create a cycle")
		}
		cur = parents[*cur]
	}
	return nil
}

func (s *ServiceImpl) requireProject(ctx context.Context, subject authz.Subject, projectID uint, action authz.Action) error {
	exists, err := s.repository.ProjectExists(ctx, projectID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("project", projectID)
	}
	return s.engine.RequireAccess(ctx, subject, authz.Project(projectID), action)
}

// BuildTree arranges labels by parent. Labels whose parent is missing become roots.
func BuildTree(labels []models.Label) []*Node {
	nodes := make(map[uint]*Node, len(labels))
	for _, l := range labels {
		nodes[l.ID] = &Node{Label: l, Children: []*Node{}}
	}

	roots := []*Node{}
	for _, l := range labels {
		node := nodes[l.ID]
		if l.ParentID != nil {
			if parent, ok := nodes[*l.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
