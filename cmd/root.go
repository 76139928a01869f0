package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/pkg/config"
	"github.com/killallgit/annotation-api/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "annotation-api",
	Short: "Media annotation API server",
	Long: `Annotation API - collaborative annotation of audio and video

Teams upload media into projects, annotate it and send annotations
through a review workflow. Media analysis runs in background workers.

Features:
  • Projects with per-member roles
  • Hierarchical label sets
  • Media upload to local disk or S3
  • Probing, frame extraction, clipping and waveforms via ffmpeg
  • Review workflow with batch review, export and statistics`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig reads configuration and builds the logger. Commands call it
// lazily so version and help work without a config.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	if err := config.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, err
	}

	jsonLogs := cfg.Logging.Format == "json"
	if cmd.Flags().Changed("json-logs") {
		jsonLogs, _ = cmd.Flags().GetBool("json-logs")
	}
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}

	logger, err := logging.New(level, jsonLogs)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// connectDatabase opens the configured database without touching the schema
func connectDatabase(cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.Initialize(database.Options{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConnections,
		ConnMaxLifetime: cfg.Database.ConnectionMaxLifetime,
		Verbose:         cfg.Database.Verbose,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// openDatabase connects and migrates the schema
func openDatabase(cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := connectDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
