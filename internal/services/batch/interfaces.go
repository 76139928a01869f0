package batch

import (
	"context"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
)

// DefaultCleanupDays is the retention used when a cleanup request names none
const DefaultCleanupDays = 30

// Dispatcher places batch jobs on the annotation queue
type Dispatcher interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...jobs.JobOption) (*models.Job, error)
	EnqueueUnique(ctx context.Context, jobType models.JobType, payload models.JobPayload, value any, opts ...jobs.JobOption) (*models.Job, error)
}

// ExportDocument is the JSON written for a project export
type ExportDocument struct {
	Project     ExportProject      `json:"project"`
	ExportTime  time.Time          `json:"export_time"`
	Format      string             `json:"format"`
	Annotations []ExportAnnotation `json:"annotations"`
}

type ExportProject struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ExportLabel struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type ExportAnnotation struct {
	ID             uint                    `json:"id"`
	MediaFileID    uint                    `json:"media_file_id"`
	AnnotatorID    uint                    `json:"annotator_id"`
	AnnotationType models.AnnotationType   `json:"annotation_type"`
	Data           models.JSONMap          `json:"data"`
	StartTime      *float64                `json:"start_time"`
	EndTime        *float64                `json:"end_time"`
	Confidence     float64                 `json:"confidence"`
	Status         models.AnnotationStatus `json:"status"`
	OutOfRange     bool                    `json:"out_of_range"`
	Label          *ExportLabel            `json:"label"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// ExportResult locates a stored export
type ExportResult struct {
	Key             string `json:"export_key"`
	AnnotationCount int    `json:"annotation_count"`
}

// Statistics summarizes a project's annotations
type Statistics struct {
	ProjectID          uint             `json:"project_id"`
	TotalAnnotations   int64            `json:"total_annotations"`
	StatusDistribution map[string]int64 `json:"status_distribution"`
	TypeDistribution   map[string]int64 `json:"type_distribution"`
	LabelDistribution  map[string]int64 `json:"label_distribution"`
	GeneratedAt        time.Time        `json:"generated_at"`
}
