// Package authz decides whether a subject may perform an action on a resource.
//
// Rules are evaluated in a fixed order and the first rule that does not
// abstain decides: admin, ownership, project membership, global role rank,
// then deny.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/annotation-api/internal/models"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

// ErrProjectNotFound is returned by a MembershipLookup for an unknown project
var ErrProjectNotFound = errors.New("project not found")

// Action is what the subject wants to do
type Action string

const (
	ActionRead          Action = "read"
	ActionWrite         Action = "write"
	ActionReview        Action = "review"
	ActionManage        Action = "manage"
	ActionCreateProject Action = "create_project"
)

// ResourceKind is the type of the target resource
type ResourceKind string

const (
	KindGlobal     ResourceKind = "global"
	KindProject    ResourceKind = "project"
	KindMedia      ResourceKind = "media"
	KindLabel      ResourceKind = "label"
	KindAnnotation ResourceKind = "annotation"
)

// Subject is a verified caller
type Subject struct {
	UserID uint
	Role   models.Role
}

// IsAdmin reports whether the subject has the global admin role
func (s Subject) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

// Resource identifies the target. ProjectID is required for every kind but
// global. AnnotatorID is only meaningful for annotations.
type Resource struct {
	Kind        ResourceKind
	ProjectID   uint
	AnnotatorID uint
}

// Global is the resource for actions not scoped to a project
func Global() Resource {
	return Resource{Kind: KindGlobal}
}

// Project is the resource for a project itself
func Project(projectID uint) Resource {
	return Resource{Kind: KindProject, ProjectID: projectID}
}

// Media is the resource for a media file in a project
func Media(projectID uint) Resource {
	return Resource{Kind: KindMedia, ProjectID: projectID}
}

// Label is the resource for a label in a project
func Label(projectID uint) Resource {
	return Resource{Kind: KindLabel, ProjectID: projectID}
}

// Annotation is the resource for an annotation on a media file in a project
func Annotation(projectID, annotatorID uint) Resource {
	return Resource{Kind: KindAnnotation, ProjectID: projectID, AnnotatorID: annotatorID}
}

// MembershipLookup loads the facts the rules need
type MembershipLookup interface {
	// ProjectOwner returns the owner of the project or ErrProjectNotFound
	ProjectOwner(ctx context.Context, projectID uint) (uint, error)
	// GetMembership returns nil, nil when the user is not a member
	GetMembership(ctx context.Context, projectID, userID uint) (*models.ProjectMembership, error)
	// AccessibleProjectIDs returns projects the user owns or is a member of
	AccessibleProjectIDs(ctx context.Context, userID uint) ([]uint, error)
}

// Engine evaluates the rule list
type Engine struct {
	lookup MembershipLookup
	rules  []rule
}

// NewEngine creates an engine with the standard rule order
func NewEngine(lookup MembershipLookup) *Engine {
	return &Engine{
		lookup: lookup,
		rules:  defaultRules(),
	}
}

// CanAccess reports whether the subject may perform action on resource
func (e *Engine) CanAccess(ctx context.Context, subject Subject, resource Resource, action Action) (bool, error) {
	f, err := e.gather(ctx, subject, resource, action)
	if err != nil {
		return false, err
	}
	return evaluate(e.rules, f), nil
}

// RequireAccess returns PermissionDenied unless access is granted
func (e *Engine) RequireAccess(ctx context.Context, subject Subject, resource Resource, action Action) error {
	ok, err := e.CanAccess(ctx, subject, resource, action)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return apperrors.NotFound("project", resource.ProjectID)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "authorization lookup failed")
	}
	if !ok {
		return apperrors.PermissionDenied(string(action), string(resource.Kind))
	}
	return nil
}

// VisibleProjectIDs returns the projects whose resources the subject may list.
// all is true for admins, in which case ids is nil.
func (e *Engine) VisibleProjectIDs(ctx context.Context, subject Subject) (ids []uint, all bool, err error) {
	if subject.IsAdmin() {
		return nil, true, nil
	}
	ids, err = e.lookup.AccessibleProjectIDs(ctx, subject.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("listing accessible projects: %w", err)
	}
	return ids, false, nil
}

// gather loads ownership and membership facts for project-scoped resources
func (e *Engine) gather(ctx context.Context, subject Subject, resource Resource, action Action) (*facts, error) {
	f := &facts{subject: subject, resource: resource, action: action}
	if resource.Kind == KindGlobal || subject.IsAdmin() {
		return f, nil
	}

	ownerID, err := e.lookup.ProjectOwner(ctx, resource.ProjectID)
	if err != nil {
		return nil, err
	}
	f.ownerID = ownerID

	membership, err := e.lookup.GetMembership(ctx, resource.ProjectID, subject.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading membership: %w", err)
	}
	f.membership = membership
	return f, nil
}
