// Package testutil provides database fixtures shared by service and handler tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a migrated sqlite database in a per-test temp dir
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := database.Initialize(database.Options{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Migrate())

	t.Cleanup(func() { _ = conn.Close() })
	return conn.DB
}

// CreateUser inserts an active user with the given global role
func CreateUser(t testing.TB, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateProject inserts a project owned by owner
func CreateProject(t testing.TB, db *gorm.DB, name string, owner *models.User) *models.Project {
	t.Helper()
	project := &models.Project{Name: name, OwnerID: owner.ID, IsActive: true}
	require.NoError(t, db.Create(project).Error)
	return project
}

// AddMember grants user a project-scoped role
func AddMember(t testing.TB, db *gorm.DB, project *models.Project, user *models.User, role models.Role) *models.ProjectMembership {
	t.Helper()
	m := &models.ProjectMembership{ProjectID: project.ID, UserID: user.ID, Role: role}
	require.NoError(t, db.Create(m).Error)
	return m
}

// CreateLabel inserts a label, optionally under parent
func CreateLabel(t testing.TB, db *gorm.DB, project *models.Project, name string, parent *models.Label) *models.Label {
	t.Helper()
	label := &models.Label{Name: name, Color: models.DefaultLabelColor, ProjectID: project.ID}
	if parent != nil {
		label.ParentID = &parent.ID
	}
	require.NoError(t, db.Create(label).Error)
	return label
}

// CreateMedia inserts a media row. duration may be nil for an unprocessed file.
func CreateMedia(t testing.TB, db *gorm.DB, project *models.Project, uploader *models.User, mediaType models.MediaType, duration *float64) *models.MediaFile {
	t.Helper()
	ext := ".mp4"
	if mediaType == models.MediaTypeAudio {
		ext = ".wav"
	}
	var count int64
	db.Model(&models.MediaFile{}).Count(&count)
	name := fmt.Sprintf("media-%d%s", count+1, ext)
	media := &models.MediaFile{
		Filename:         name,
		OriginalFilename: "original" + ext,
		StorageKey:       fmt.Sprintf("projects/%d/%s", project.ID, name),
		FileSize:         1024,
		Duration:         duration,
		MediaType:        mediaType,
		ProjectID:        project.ID,
		UploadedBy:       uploader.ID,
	}
	require.NoError(t, db.Create(media).Error)
	return media
}

// CreateAnnotation inserts an annotation in the given status
func CreateAnnotation(t testing.TB, db *gorm.DB, media *models.MediaFile, annotator *models.User, status models.AnnotationStatus) *models.Annotation {
	t.Helper()
	a := &models.Annotation{
		MediaFileID:    media.ID,
		AnnotatorID:    annotator.ID,
		AnnotationType: models.AnnotationTypeRectangle,
		Payload:        models.JSONMap{"x": 1, "y": 2, "w": 3, "h": 4},
		Confidence:     1,
		Status:         status,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
