package media

import (
	"context"
	"io"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/jobs"
)

// Repository defines the interface for media data access
type Repository interface {
	CreateMedia(ctx context.Context, media *models.MediaFile) error
	GetMediaByID(ctx context.Context, id uint) (*models.MediaFile, error)
	ListMedia(ctx context.Context, filter ListFilter, projectIDs []uint, all bool) ([]models.MediaFile, int64, error)
	DeleteMedia(ctx context.Context, id uint) (*models.MediaFile, error)
	UpdateDerived(ctx context.Context, id uint, duration float64, metadata models.JSONMap) error
	UpsertSegment(ctx context.Context, segment *models.VideoSegment) error
	ListSegments(ctx context.Context, mediaID uint) ([]models.VideoSegment, error)
	ProjectExists(ctx context.Context, projectID uint) (bool, error)
}

// Dispatcher places processing jobs on their queue
type Dispatcher interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...jobs.JobOption) (*models.Job, error)
	EnqueueUnique(ctx context.Context, jobType models.JobType, payload models.JobPayload, value any, opts ...jobs.JobOption) (*models.Job, error)
}

// Service defines the interface for the media registry
type Service interface {
	Upload(ctx context.Context, subject authz.Subject, projectID uint, filename string, size int64, r io.Reader) (*models.MediaFile, error)
	Get(ctx context.Context, subject authz.Subject, id uint) (*models.MediaFile, error)
	List(ctx context.Context, subject authz.Subject, filter ListFilter) ([]models.MediaFile, int64, error)
	Delete(ctx context.Context, subject authz.Subject, id uint) error

	Reprocess(ctx context.Context, subject authz.Subject, id uint) (*models.Job, error)
	RequestFrames(ctx context.Context, subject authz.Subject, id uint, fps float64) (*models.Job, error)
	RequestSegment(ctx context.Context, subject authz.Subject, id uint, start, end float64) (*models.Job, error)
	RequestWaveform(ctx context.Context, subject authz.Subject, id uint) (*models.Job, error)
	ListSegments(ctx context.Context, subject authz.Subject, id uint) ([]models.VideoSegment, error)

	// UpdateDerived is called by the processing pipeline only
	UpdateDerived(ctx context.Context, id uint, duration float64, metadata models.JSONMap) error
}

// ListFilter narrows a media listing
type ListFilter struct {
	ProjectID *uint
	MediaType models.MediaType
	Skip      int
	Limit     int
}

// UploadConfig holds upload limits and processing defaults
type UploadConfig struct {
	MaxSize         int64
	VideoExtensions []string
	AudioExtensions []string
	FrameFPS        float64
}
