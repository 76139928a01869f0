package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository errors
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrNoJobsAvailable = errors.New("no jobs available")
)

// Repository defines the interface for job persistence
type Repository interface {
	// Create operations
	CreateJob(ctx context.Context, job *models.Job) error

	// Read operations
	GetJob(ctx context.Context, id uint) (*models.Job, error)
	GetActiveJobByUniqueKey(ctx context.Context, uniqueKey string) (*models.Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error)
	GetStaleJobs(ctx context.Context, queue string, startedBefore time.Time) ([]*models.Job, error)

	// Update operations
	ClaimNextJob(ctx context.Context, workerID, queue string, jobTypes []models.JobType) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, jobID uint, progress int) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error
	FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error
	ReleaseJob(ctx context.Context, jobID uint) error
	ResetJob(ctx context.Context, jobID uint) error

	// Delete operations
	DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// repository implements Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new job repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// CreateJob creates a new job
func (r *repository) CreateJob(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job by ID
func (r *repository) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return &job, nil
}

// GetActiveJobByUniqueKey finds the newest job with the key that can still run
func (r *repository) GetActiveJobByUniqueKey(ctx context.Context, uniqueKey string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("unique_key = ?", uniqueKey).
		Where("(status IN ? OR (status = ? AND retry_count < max_retries))",
			[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing},
			models.JobStatusFailed).
		Order("id DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job by unique key: %w", err)
	}
	return &job, nil
}

// ListJobs retrieves jobs newest first
func (r *repository) ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error) {
	var jobs []*models.Job
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC")

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Queue != "" {
		query = query.Where("queue = ?", filter.Queue)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// GetStaleJobs returns processing jobs on queue that started before the cutoff
func (r *repository) GetStaleJobs(ctx context.Context, queue string, startedBefore time.Time) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND queue = ? AND started_at < ?", models.JobStatusProcessing, queue, startedBefore).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("getting stale jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNextJob atomically claims the next available job on queue for a worker
func (r *repository) ClaimNextJob(ctx context.Context, workerID, queue string, jobTypes []models.JobType) (*models.Job, error) {
	var job models.Job

	// Start a transaction for atomic claim
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Find and lock the next available job. Failed jobs are retried
		// until retry_count reaches max_retries.
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("(status = ? OR (status = ? AND retry_count < max_retries))",
				models.JobStatusPending, models.JobStatusFailed)

		if queue != "" {
			query = query.Where("queue = ?", queue)
		}
		if len(jobTypes) > 0 {
			query = query.Where("type IN ?", jobTypes)
		}

		// Order by priority and creation time
		err := query.Order("priority DESC, created_at ASC, id ASC").
			First(&job).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoJobsAvailable
			}
			return fmt.Errorf("finding job to claim: %w", err)
		}

		now := time.Now()
		result := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Updates(map[string]interface{}{
				"status":     models.JobStatusProcessing,
				"worker_id":  workerID,
				"started_at": &now,
				"progress":   0,
			})
		if result.Error != nil {
			return fmt.Errorf("updating claimed job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNoJobsAvailable
		}

		job.Status = models.JobStatusProcessing
		job.WorkerID = workerID
		job.StartedAt = &now
		job.Progress = 0
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &job, nil
}

// UpdateJobProgress updates the progress of a job
func (r *repository) UpdateJobProgress(ctx context.Context, jobID uint, progress int) error {
	// Ensure progress is within bounds
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Update("progress", progress)

	if result.Error != nil {
		return fmt.Errorf("updating job progress: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// CompleteJob marks a job as completed with a result
func (r *repository) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"progress":     100,
		"completed_at": &now,
		"result":       result,
		"worker_id":    "",
	}

	res := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(updates)

	if res.Error != nil {
		return fmt.Errorf("completing job: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// FailJobWithDetails marks a job as failed with detailed error information.
// The job becomes permanently failed once retry_count reaches max_retries or
// the error type is not retryable.
func (r *repository) FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error {
	now := time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return fmt.Errorf("finding job to fail: %w", err)
		}

		newRetryCount := job.RetryCount + 1

		status := models.JobStatusFailed
		if newRetryCount >= job.MaxRetries || errorType.Permanent() {
			status = models.JobStatusPermanentlyFailed
		}

		updates := map[string]interface{}{
			"status":         status,
			"error":          errorMsg,
			"error_type":     string(errorType),
			"error_code":     errorCode,
			"error_details":  errorDetails,
			"last_failed_at": &now,
			"retry_count":    newRetryCount,
			"worker_id":      "",
		}

		// Only set completed_at for permanently failed jobs
		if status == models.JobStatusPermanentlyFailed {
			updates["completed_at"] = &now
		}

		if err := tx.Model(&models.Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failing job: %w", err)
		}
		return nil
	})
}

// ReleaseJob releases a job back to pending status (e.g., if worker shuts down)
func (r *repository) ReleaseJob(ctx context.Context, jobID uint) error {
	updates := map[string]interface{}{
		"status":     models.JobStatusPending,
		"worker_id":  "",
		"started_at": nil,
		"progress":   0,
	}

	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("releasing job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// ResetJob puts a failed job back to pending with a fresh retry budget
func (r *repository) ResetJob(ctx context.Context, jobID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status IN ?", jobID, []models.JobStatus{models.JobStatusFailed, models.JobStatusPermanentlyFailed}).
		Updates(map[string]interface{}{
			"status":       models.JobStatusPending,
			"retry_count":  0,
			"worker_id":    "",
			"started_at":   nil,
			"completed_at": nil,
			"progress":     0,
		})

	if result.Error != nil {
		return fmt.Errorf("resetting job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteOldJobs removes finished jobs created before the cutoff
func (r *repository) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", olderThan).
		Where("status IN ?", []models.JobStatus{
			models.JobStatusCompleted,
			models.JobStatusPermanentlyFailed,
			models.JobStatusCancelled,
		}).
		Delete(&models.Job{})

	if result.Error != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}
