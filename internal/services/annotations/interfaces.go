package annotations

import (
	"context"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
)

// Repository defines the interface for annotation data access
type Repository interface {
	// Create operations
	CreateAnnotation(ctx context.Context, annotation *models.Annotation) error

	// Read operations
	GetAnnotationByID(ctx context.Context, id uint) (*models.Annotation, error)
	ListAnnotations(ctx context.Context, query Query) ([]models.Annotation, int64, error)
	GetMediaByID(ctx context.Context, id uint) (*models.MediaFile, error)
	GetLabelByID(ctx context.Context, id uint) (*models.Label, error)

	// Update operations
	UpdateAnnotation(ctx context.Context, id uint, fields map[string]any) error
	ApplyReview(ctx context.Context, id uint, status models.AnnotationStatus, reviewerID uint, comment *string) error
	FlagOutOfRange(ctx context.Context, mediaID uint, duration float64) (int64, error)

	// Delete operations
	DeleteAnnotation(ctx context.Context, id uint) error
}

// Service defines the interface for the annotation review workflow
type Service interface {
	Create(ctx context.Context, subject authz.Subject, input CreateInput) (*models.Annotation, error)
	Get(ctx context.Context, subject authz.Subject, id uint) (*models.Annotation, error)
	List(ctx context.Context, subject authz.Subject, filter Filter) ([]models.Annotation, int64, error)
	Update(ctx context.Context, subject authz.Subject, id uint, patch Patch) (*models.Annotation, error)
	Delete(ctx context.Context, subject authz.Subject, id uint) error
	Review(ctx context.Context, subject authz.Subject, id uint, decision string, comment *string) (*models.Annotation, error)

	// FlagOutOfRange marks annotations of a media file whose time range lies
	// past its duration. Called by the probe job once the duration is known.
	FlagOutOfRange(ctx context.Context, mediaID uint, duration float64) (int64, error)
}

// CreateInput carries the fields of a new annotation
type CreateInput struct {
	MediaFileID    uint
	LabelID        *uint
	AnnotationType string
	Payload        models.JSONMap
	StartTime      *float64
	EndTime        *float64
	Confidence     *float64
}

// Patch is a partial update, nil fields are left unchanged
type Patch struct {
	LabelID        *uint
	ClearLabel     bool
	AnnotationType *string
	Payload        models.JSONMap
	StartTime      *float64
	EndTime        *float64
	Confidence     *float64
}

// Filter narrows a listing. Status and AnnotationType are parsed and validated.
type Filter struct {
	MediaFileID    *uint
	ProjectID      *uint
	AnnotationType string
	Status         string
	Skip           int
	Limit          int
}

// Query is a resolved listing passed to the repository
type Query struct {
	MediaFileID *uint
	ProjectID   *uint
	// ProjectIDs restricts results to these projects when Restrict is set
	ProjectIDs []uint
	Restrict   bool
	// VisibleTo limits results to the user's own annotations plus terminal ones
	VisibleTo      *uint
	AnnotationType models.AnnotationType
	Status         models.AnnotationStatus
	Skip           int
	Limit          int
}
