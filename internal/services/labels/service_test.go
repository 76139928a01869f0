package labels

import (
	"context"
	"testing"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/testutil"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      Service
	owner    authz.Subject
	outsider authz.Subject
	project  *models.Project
	other    *models.Project
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner", models.RoleProjectManager)
	outsider := testutil.CreateUser(t, db, "outsider", models.RoleAnnotator)

	return &fixture{
		svc:      NewService(NewRepository(db), authz.NewEngine(authz.NewGormLookup(db)), nil),
		owner:    authz.Subject{UserID: owner.ID, Role: owner.Role},
		outsider: authz.Subject{UserID: outsider.ID, Role: outsider.Role},
		project:  testutil.CreateProject(t, db, "p", owner),
		other:    testutil.CreateProject(t, db, "other", owner),
	}
}

func TestServiceImpl_Create(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	root, err := f.svc.Create(ctx, f.owner, f.project.ID, CreateInput{Name: "animal"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLabelColor, root.Color)

	foreign, err := f.svc.Create(ctx, f.owner, f.other.ID, CreateInput{Name: "x"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		project uint
		subject authz.Subject
		input   CreateInput
		code    apperrors.ErrorCode
	}{
		{"child of root", f.project.ID, f.owner, CreateInput{Name: "bird", ParentID: &root.ID, Color: "#00ff00"}, ""},
		{"missing name", f.project.ID, f.owner, CreateInput{}, apperrors.ErrCodeMissingField},
		{"bad color", f.project.ID, f.owner, CreateInput{Name: "c", Color: "red"}, apperrors.ErrCodeValidation},
		{"parent in other project", f.project.ID, f.owner, CreateInput{Name: "c", ParentID: &foreign.ID}, apperrors.ErrCodeValidation},
		{"unknown project", 999, f.owner, CreateInput{Name: "c"}, apperrors.ErrCodeNotFound},
		{"outsider", f.project.ID, f.outsider, CreateInput{Name: "c"}, apperrors.ErrCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.subject, tt.project, tt.input)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestServiceImpl_UpdateRejectsCycles(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	a, err := f.svc.Create(ctx, f.owner, f.project.ID, CreateInput{Name: "a"})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, f.owner, f.project.ID, CreateInput{Name: "b", ParentID: &a.ID})
	require.NoError(t, err)
	c, err := f.svc.Create(ctx, f.owner, f.project.ID, CreateInput{Name: "c", ParentID: &b.ID})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.owner, a.ID, UpdateInput{ParentID: &c.ID})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation), "a under its grandchild")

	_, err = f.svc.Update(ctx, f.owner, a.ID, UpdateInput{ParentID: &a.ID})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation), "a under itself")

	moved, err := f.svc.Update(ctx, f.owner, c.ID, UpdateInput{ParentID: &a.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, *moved.ParentID)

	rooted, err := f.svc.Update(ctx, f.owner, c.ID, UpdateInput{ClearParent: true})
	require.NoError(t, err)
	assert.Nil(t, rooted.ParentID)
}

func TestServiceImpl_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	parent, err := f.svc.Create(ctx, f.owner, f.project.ID, CreateInput{Name: "parent"})
	require.NoError(t, err)
	child, err := f.svc.Create(ctx, f.owner, f.project.ID, CreateInput{Name: "child", ParentID: &parent.ID})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, f.owner, parent.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))

	require.NoError(t, f.svc.Delete(ctx, f.owner, child.ID))
	require.NoError(t, f.svc.Delete(ctx, f.owner, parent.ID))

	_, err = f.svc.Get(ctx, f.owner, parent.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestBuildTree(t *testing.T) {
	one, two := uint(1), uint(2)
	missing := uint(99)
	labels := []models.Label{
		{ID: 1, Name: "root"},
		{ID: 2, Name: "child", ParentID: &one},
		{ID: 3, Name: "grandchild", ParentID: &two},
		{ID: 4, Name: "orphan", ParentID: &missing},
	}

	tree := BuildTree(labels)
	require.Len(t, tree, 2)
	assert.Equal(t, "root", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "grandchild", tree[0].Children[0].Children[0].Name)
	assert.Equal(t, "orphan", tree[1].Name)
}
