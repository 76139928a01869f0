package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/pkg/config"
	"go.uber.org/zap"
)

// Enqueuer schedules deduplicated jobs onto their queue
type Enqueuer interface {
	EnqueueUnique(ctx context.Context, jobType models.JobType, payload models.JobPayload, value any, opts ...jobs.JobOption) (*models.Job, error)
}

// JobPruner deletes finished job records past their retention
type JobPruner interface {
	CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error)
}

// Scheduler periodically enqueues annotation retention cleanup, prunes old
// job records and sweeps the temp dir. A file lock keeps it to one
// scheduler per host.
type Scheduler struct {
	cfg      config.CleanupConfig
	enqueuer Enqueuer
	pruner   JobPruner
	sweeper  *Sweeper
	lock     *flock.Flock
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a maintenance scheduler. sweeper may be nil.
func NewScheduler(cfg config.CleanupConfig, enqueuer Enqueuer, pruner JobPruner, sweeper *Sweeper, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		enqueuer: enqueuer,
		pruner:   pruner,
		sweeper:  sweeper,
		lock:     flock.New(cfg.LockFile),
		logger:   logger.Named("cleanup"),
	}
}

// Start acquires the scheduler lock and begins the periodic loop. It
// reports false without error when another process holds the lock.
func (s *Scheduler) Start(ctx context.Context) (bool, error) {
	if s.cfg.Interval <= 0 {
		return false, fmt.Errorf("cleanup interval must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.LockFile), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		s.logger.Info("Cleanup scheduler lock held elsewhere, not scheduling", zap.String("lock", s.cfg.LockFile))
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Cleanup scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("annotation_retention_days", s.cfg.AnnotationRetentionDays),
		zap.Int("job_retention_days", s.cfg.JobRetentionDays))
	return true, nil
}

// Stop ends the loop and releases the lock
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("Failed to release cleanup lock", zap.Error(err))
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance round
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.cfg.AnnotationRetentionDays > 0 && s.enqueuer != nil {
		// one cleanup job per day at most, no matter how many rounds run
		day := time.Now().UTC().Format("2006-01-02")
		job, err := s.enqueuer.EnqueueUnique(ctx, models.JobTypeAnnotationCleanup,
			models.JobPayload{"days": s.cfg.AnnotationRetentionDays}, day,
			jobs.WithCreatedBy("scheduler"))
		if err != nil {
			s.logger.Error("Failed to schedule annotation cleanup", zap.Error(err))
		} else {
			s.logger.Debug("Scheduled annotation cleanup", zap.Uint("job_id", job.ID))
		}
	}

	if s.cfg.JobRetentionDays > 0 && s.pruner != nil {
		if _, err := s.pruner.CleanupOldJobs(ctx, s.cfg.JobRetentionDays); err != nil {
			s.logger.Error("Failed to prune old jobs", zap.Error(err))
		}
	}

	if s.sweeper != nil {
		s.sweeper.Sweep()
	}
}
