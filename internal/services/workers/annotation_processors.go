package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/batch"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"go.uber.org/zap"
)

// BatchRunner is the batch surface the annotation queue drives
type BatchRunner interface {
	WriteExport(ctx context.Context, projectID uint) (*batch.ExportResult, error)
	Statistics(ctx context.Context, projectID uint) (*batch.Statistics, error)
	BatchReview(ctx context.Context, projectID uint, status string, comment *string, reviewerID uint) (int64, error)
	Cleanup(ctx context.Context, days int) (int64, time.Time, error)
}

func projectID(job *models.Job) (uint, error) {
	id, ok := job.GetPayloadUint("project_id")
	if !ok || id == 0 {
		return 0, invalidPayload(job, "project_id")
	}
	return id, nil
}

// ExportProcessor runs annotation_export jobs
type ExportProcessor struct {
	progressReporter
	batch BatchRunner
}

// NewExportProcessor creates an export processor
func NewExportProcessor(jobService jobs.Service, b BatchRunner, logger *zap.Logger) *ExportProcessor {
	return &ExportProcessor{progressReporter: newReporter(jobService, logger), batch: b}
}

func (p *ExportProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeAnnotationExport
}

func (p *ExportProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := projectID(job)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 10)

	result, err := p.batch.WriteExport(ctx, id)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"project_id":       id,
		"export_key":       result.Key,
		"annotation_count": result.AnnotationCount,
	}, nil
}

// StatisticsProcessor runs annotation_statistics jobs
type StatisticsProcessor struct {
	progressReporter
	batch BatchRunner
}

// NewStatisticsProcessor creates a statistics processor
func NewStatisticsProcessor(jobService jobs.Service, b BatchRunner, logger *zap.Logger) *StatisticsProcessor {
	return &StatisticsProcessor{progressReporter: newReporter(jobService, logger), batch: b}
}

func (p *StatisticsProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeAnnotationStatistics
}

func (p *StatisticsProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := projectID(job)
	if err != nil {
		return nil, err
	}

	stats, err := p.batch.Statistics(ctx, id)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"project_id":          id,
		"total_annotations":   stats.TotalAnnotations,
		"status_distribution": stats.StatusDistribution,
		"type_distribution":   stats.TypeDistribution,
		"label_distribution":  stats.LabelDistribution,
		"generated_at":        stats.GeneratedAt,
	}, nil
}

// BatchReviewProcessor runs annotation_batch_review jobs
type BatchReviewProcessor struct {
	progressReporter
	batch BatchRunner
}

// NewBatchReviewProcessor creates a batch review processor
func NewBatchReviewProcessor(jobService jobs.Service, b BatchRunner, logger *zap.Logger) *BatchReviewProcessor {
	return &BatchReviewProcessor{progressReporter: newReporter(jobService, logger), batch: b}
}

func (p *BatchReviewProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeAnnotationBatchReview
}

func (p *BatchReviewProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := projectID(job)
	if err != nil {
		return nil, err
	}
	status, ok := job.GetPayloadString("status")
	if !ok {
		return nil, invalidPayload(job, "status")
	}
	reviewerID, _ := job.GetPayloadUint("reviewer_id")
	var comment *string
	if c, ok := job.GetPayloadString("comment"); ok {
		comment = &c
	}
	p.progress(ctx, job.ID, 10)

	updated, err := p.batch.BatchReview(ctx, id, status, comment, reviewerID)
	if err != nil {
		// The review rolled back as a whole, so the failure records zero updates
		failed := Classify(err)
		failed.Details = fmt.Sprintf("updated_count=0: %s", failed.Details)
		return nil, failed
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"project_id":    id,
		"updated_count": updated,
		"new_status":    status,
	}, nil
}

// CleanupProcessor runs annotation_cleanup jobs
type CleanupProcessor struct {
	progressReporter
	batch BatchRunner
}

// NewCleanupProcessor creates a retention cleanup processor
func NewCleanupProcessor(jobService jobs.Service, b BatchRunner, logger *zap.Logger) *CleanupProcessor {
	return &CleanupProcessor{progressReporter: newReporter(jobService, logger), batch: b}
}

func (p *CleanupProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeAnnotationCleanup
}

func (p *CleanupProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	days, ok := job.GetPayloadInt("days")
	if !ok {
		days = batch.DefaultCleanupDays
	}

	deleted, cutoff, err := p.batch.Cleanup(ctx, days)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"deleted_count": deleted,
		"cutoff_date":   cutoff.Format(time.RFC3339),
	}, nil
}
