package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultPriority   = 0
)

type service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a job service
func NewService(repo Repository, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		repo:   repo,
		logger: logger.Named("jobs"),
	}
}

func (s *service) EnqueueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error) {
	return s.enqueue(ctx, jobType, payload, "", opts...)
}

func (s *service) EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error) {
	if uniqueKey == "" {
		return nil, fmt.Errorf("unique key is required")
	}

	existingJob, err := s.repo.GetActiveJobByUniqueKey(ctx, uniqueKey)
	if err == nil {
		s.logger.Debug("Job already exists",
			zap.String("type", string(jobType)),
			zap.String("unique_key", uniqueKey),
			zap.Uint("job_id", existingJob.ID),
			zap.String("status", string(existingJob.Status)))
		return existingJob, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	return s.enqueue(ctx, jobType, payload, uniqueKey, opts...)
}

func (s *service) enqueue(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error) {
	cfg := &jobConfig{
		Priority:   DefaultPriority,
		MaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	job := &models.Job{
		Type:             jobType,
		Queue:            cfg.Queue,
		Status:           models.JobStatusPending,
		Payload:          payload,
		UniqueKey:        uniqueKey,
		Priority:         cfg.Priority,
		MaxRetries:       cfg.MaxRetries,
		CreatedBy:        cfg.CreatedBy,
		SoftLimitSeconds: int(cfg.SoftLimit / time.Second),
		HardLimitSeconds: int(cfg.HardLimit / time.Second),
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	s.logger.Debug("Enqueued job",
		zap.String("type", string(jobType)),
		zap.String("queue", job.Queue),
		zap.Uint("job_id", job.ID),
		zap.Int("priority", job.Priority))

	return job, nil
}

func (s *service) GetJob(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

func (s *service) ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error) {
	return s.repo.ListJobs(ctx, filter)
}

func (s *service) ClaimNextJob(ctx context.Context, workerID, queue string, jobTypes []models.JobType) (*models.Job, error) {
	job, err := s.repo.ClaimNextJob(ctx, workerID, queue, jobTypes)
	if err != nil {
		if errors.Is(err, ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	s.logger.Debug("Worker claimed job",
		zap.String("worker_id", workerID),
		zap.String("type", string(job.Type)),
		zap.Uint("job_id", job.ID))

	return job, nil
}

func (s *service) UpdateProgress(ctx context.Context, jobID uint, progress int) error {
	if err := s.repo.UpdateJobProgress(ctx, jobID, progress); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("updating job progress: %w", err)
	}
	return nil
}

func (s *service) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	if err := s.repo.CompleteJob(ctx, jobID, result); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("completing job: %w", err)
	}

	s.logger.Debug("Job completed", zap.Uint("job_id", jobID))
	return nil
}

func (s *service) FailJob(ctx context.Context, jobID uint, err error) error {
	return s.FailJobWithDetails(ctx, jobID, models.ErrorTypeSystem, "", err.Error(), "")
}

func (s *service) FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error {
	if err := s.repo.FailJobWithDetails(ctx, jobID, errorType, errorCode, errorMsg, errorDetails); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("failing job with details: %w", err)
	}

	fields := []zap.Field{
		zap.Uint("job_id", jobID),
		zap.String("error_type", string(errorType)),
		zap.String("error_code", errorCode),
		zap.String("error", errorMsg),
	}
	job, _ := s.repo.GetJob(ctx, jobID)
	if job != nil && job.IsRetryable() {
		s.logger.Warn("Job failed, will retry",
			append(fields, zap.Int("retry", job.RetryCount), zap.Int("max_retries", job.MaxRetries))...)
	} else {
		s.logger.Error("Job failed permanently", fields...)
	}

	return nil
}

func (s *service) ReleaseJob(ctx context.Context, jobID uint) error {
	if err := s.repo.ReleaseJob(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("releasing job: %w", err)
	}

	s.logger.Debug("Job released back to pending", zap.Uint("job_id", jobID))
	return nil
}

func (s *service) RetryFailedJob(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting job for retry: %w", err)
	}

	// Only allow retry for failed or permanently failed jobs
	if job.Status != models.JobStatusFailed && job.Status != models.JobStatusPermanentlyFailed {
		return nil, fmt.Errorf("job %d cannot be retried: status is %s (only 'failed' or 'permanently_failed' jobs can be retried)",
			jobID, job.Status)
	}

	if err := s.repo.ResetJob(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resetting job for retry: %w", err)
	}

	updatedJob, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("getting updated job after retry: %w", err)
	}

	s.logger.Info("Job manually retried",
		zap.Uint("job_id", jobID),
		zap.String("from", string(job.Status)),
		zap.String("to", string(updatedJob.Status)))

	return updatedJob, nil
}

func (s *service) RecoverStale(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	stale, err := s.repo.GetStaleJobs(ctx, queue, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range stale {
		err := s.repo.FailJobWithDetails(ctx, job.ID, models.ErrorTypeTimeout, "stale_worker",
			fmt.Sprintf("worker %s stopped before finishing", job.WorkerID), "")
		if err != nil {
			s.logger.Warn("Failed to recover stale job", zap.Uint("job_id", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("Recovered stale jobs", zap.String("queue", queue), zap.Int("count", recovered))
	}
	return recovered, nil
}

func (s *service) CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := s.repo.DeleteOldJobs(ctx, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("cleaning up old jobs: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Deleted old jobs", zap.Int64("count", deleted), zap.Int("retention_days", retentionDays))
	}

	return deleted, nil
}
