package jobs

import (
	"context"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
)

// Service defines the business logic interface for job operations
type Service interface {
	// Enqueue operations
	EnqueueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error)
	// EnqueueUniqueJob returns the existing non-terminal job with the same key instead of adding a duplicate
	EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error)

	// Status and retrieval
	GetJob(ctx context.Context, jobID uint) (*models.Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error)

	// Worker operations (used by worker pool)
	ClaimNextJob(ctx context.Context, workerID, queue string, jobTypes []models.JobType) (*models.Job, error)
	UpdateProgress(ctx context.Context, jobID uint, progress int) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error
	FailJob(ctx context.Context, jobID uint, err error) error
	FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error
	ReleaseJob(ctx context.Context, jobID uint) error
	RetryFailedJob(ctx context.Context, jobID uint) (*models.Job, error)
	// RecoverStale fails processing jobs on queue whose worker stopped reporting
	RecoverStale(ctx context.Context, queue string, olderThan time.Duration) (int, error)

	// Maintenance
	CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error)
}

// ListFilter narrows ListJobs. Zero values match everything.
type ListFilter struct {
	Status models.JobStatus
	Queue  string
	Type   models.JobType
	Limit  int
}

// JobOption is a functional option for configuring jobs
type JobOption func(*jobConfig)

// jobConfig holds configuration for a job
type jobConfig struct {
	Priority   int
	MaxRetries int
	CreatedBy  string
	Queue      string
	SoftLimit  time.Duration
	HardLimit  time.Duration
}

// WithPriority sets the priority of a job (higher = more priority)
func WithPriority(priority int) JobOption {
	return func(cfg *jobConfig) {
		cfg.Priority = priority
	}
}

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(retries int) JobOption {
	return func(cfg *jobConfig) {
		cfg.MaxRetries = retries
	}
}

// WithCreatedBy sets who created the job
func WithCreatedBy(createdBy string) JobOption {
	return func(cfg *jobConfig) {
		cfg.CreatedBy = createdBy
	}
}

// WithQueue places the job on a named queue
func WithQueue(queue string) JobOption {
	return func(cfg *jobConfig) {
		cfg.Queue = queue
	}
}

// WithTimeLimits sets the cooperative soft limit and the enforced hard limit
func WithTimeLimits(soft, hard time.Duration) JobOption {
	return func(cfg *jobConfig) {
		cfg.SoftLimit = soft
		cfg.HardLimit = hard
	}
}
