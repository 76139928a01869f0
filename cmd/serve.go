package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/killallgit/annotation-api/api"
	"github.com/killallgit/annotation-api/api/version"
	"github.com/killallgit/annotation-api/internal/app"
	"github.com/killallgit/annotation-api/internal/services/cleanup"
	"github.com/killallgit/annotation-api/internal/services/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serverHost string
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Annotation API server with the configured settings.

With processing.embedded_workers enabled the server also runs a worker
pool per queue and the cleanup scheduler, which is convenient for a
single host deployment.

Example:
  annotation-api serve
  annotation-api serve --port 9090
  annotation-api serve --host 0.0.0.0 --port 8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

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
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("Failed to close application", zap.Error(err))
		}
	}()

	server := api.NewServer(application.Dependencies(), buildInfo(), logger)
	if err := server.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	var pools []*workers.WorkerPool
	var scheduler *cleanup.Scheduler
	if cfg.Processing.EmbeddedWorkers {
		for _, queue := range []string{cfg.Queues.Media.Name, cfg.Queues.Annotation.Name} {
			queueCfg, err := application.Queue(queue)
			if err != nil {
				return err
			}
			pool := application.WorkerPool(queueCfg)
			if err := pool.Start(ctx); err != nil {
				return fmt.Errorf("failed to start %s workers: %w", queue, err)
			}
			pools = append(pools, pool)
		}

		scheduler = application.CleanupScheduler()
		if _, err := scheduler.Start(ctx); err != nil {
			logger.Warn("Cleanup scheduler not started", zap.Error(err))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Annotation API listening",
		zap.String("addr", server.Addr()),
		zap.String("version", Version),
		zap.Bool("embedded_workers", cfg.Processing.EmbeddedWorkers))

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server")
	case err := <-serverErr:
		logger.Error("Server error, shutting down", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	for _, pool := range pools {
		pool.Stop()
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	if shutdownErr != nil {
		logger.Error("Server forced to shutdown", zap.Error(shutdownErr))
		return shutdownErr
	}
	logger.Info("Server gracefully stopped")
	return nil
}

func buildInfo() version.Info {
	return version.Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
}
