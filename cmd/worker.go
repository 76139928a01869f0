package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/killallgit/annotation-api/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerQueue string

// workerCmd runs a worker pool for one queue
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background workers for a queue",
	Long: `Run a pool of workers that claim jobs from one named queue.

Only one worker process per queue runs on a host. The pool size and the
soft and hard time limits come from the queue settings.

Example:
  annotation-api worker --queue media
  annotation-api worker --queue annotation`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerQueue, "queue", "", "queue to consume (media or annotation)")
	_ = workerCmd.MarkFlagRequired("queue")
}

// workerLockPath places the per-queue lock next to the cleanup lock
func workerLockPath(lockFile, queue string) string {
	return filepath.Join(filepath.Dir(lockFile), fmt.Sprintf("worker-%s.lock", queue))
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lockPath := workerLockPath(cfg.Cleanup.LockFile, workerQueue)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("a worker for queue %q is already running (lock %s)", workerQueue, lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release worker lock", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = application.Close() }()

	queue, err := application.Queue(workerQueue)
	if err != nil {
		return err
	}

	pool := application.WorkerPool(queue)
	if err := pool.Start(ctx); err != nil {
		return err
	}
	logger.Info("Worker running",
		zap.String("queue", queue.Name),
		zap.Int("workers", queue.Workers),
		zap.Duration("soft_limit", queue.SoftLimit),
		zap.Duration("hard_limit", queue.HardLimit))

	<-ctx.Done()
	logger.Info("Stopping worker", zap.String("queue", queue.Name))
	pool.Stop()
	return nil
}
