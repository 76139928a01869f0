// Package app wires configuration, storage and services into a running
// application. The serve and worker commands and the API tests share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/internal/events"
	"github.com/killallgit/annotation-api/internal/metrics"
	"github.com/killallgit/annotation-api/internal/services/annotations"
	"github.com/killallgit/annotation-api/internal/services/auth"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/batch"
	"github.com/killallgit/annotation-api/internal/services/cache"
	"github.com/killallgit/annotation-api/internal/services/cleanup"
	"github.com/killallgit/annotation-api/internal/services/dispatcher"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/services/labels"
	"github.com/killallgit/annotation-api/internal/services/media"
	"github.com/killallgit/annotation-api/internal/services/pipeline"
	"github.com/killallgit/annotation-api/internal/services/projects"
	"github.com/killallgit/annotation-api/internal/services/users"
	"github.com/killallgit/annotation-api/internal/services/workers"
	"github.com/killallgit/annotation-api/pkg/config"
	"github.com/killallgit/annotation-api/pkg/ffmpeg"
	"github.com/killallgit/annotation-api/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App holds every long lived service
type App struct {
	Config    *config.Config
	DB        *database.DB
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Store     storage.ObjectStore
	Publisher events.Publisher

	Authz       *authz.Engine
	Auth        *auth.Service
	Users       users.Service
	Projects    projects.Service
	Labels      labels.Service
	Media       media.Service
	Annotations annotations.Service
	Batch       *batch.Service
	Jobs        jobs.Service
	Dispatcher  *dispatcher.Dispatcher
	Pipeline    *pipeline.Pipeline
}

type options struct {
	store     storage.ObjectStore
	publisher events.Publisher
	analyzer  pipeline.Analyzer
	registry  *prometheus.Registry
}

// Option overrides a default collaborator
type Option func(*options)

// WithStore uses store instead of the configured backend
func WithStore(store storage.ObjectStore) Option {
	return func(o *options) { o.store = store }
}

// WithPublisher uses publisher instead of the configured event sink
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithAnalyzer replaces the ffmpeg analyzer
func WithAnalyzer(a pipeline.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithRegistry registers metrics on registry instead of a fresh one
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New builds the application on an open database
func New(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, DB: db, Logger: logger}

	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	a.Metrics = m

	a.Store = o.store
	if a.Store == nil {
		if a.Store, err = NewStore(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	a.Publisher = o.publisher
	if a.Publisher == nil {
		if a.Publisher, err = NewPublisher(cfg.Events, logger); err != nil {
			return nil, err
		}
	}

	gormDB := db.DB
	a.Authz = authz.NewEngine(authz.NewGormLookup(gormDB))
	a.Users = users.NewService(users.NewRepository(gormDB), logger)

	var identities cache.Cache
	if cfg.Auth.IdentityCache > 0 {
		identities = cache.NewMemoryCache(cfg.Auth.IdentityCache, 2*cfg.Auth.IdentityCache)
	}
	a.Auth, err = auth.NewService(auth.Options{
		Secret:           cfg.Auth.JWTSecret,
		Issuer:           cfg.Auth.Issuer,
		TokenTTL:         cfg.Auth.TokenTTL,
		IdentityCacheTTL: cfg.Auth.IdentityCache,
	}, a.Users, identities)
	if err != nil {
		return nil, err
	}

	a.Jobs = jobs.NewService(jobs.NewRepository(gormDB), logger)
	a.Dispatcher = dispatcher.New(a.Jobs, cfg.Queues, m)

	a.Projects = projects.NewService(projects.NewRepository(gormDB), a.Authz, a.Store, logger)
	a.Labels = labels.NewService(labels.NewRepository(gormDB), a.Authz, logger)
	a.Media = media.NewService(gormDB, a.Store, a.Dispatcher, a.Authz, media.UploadConfig{
		MaxSize:         cfg.Upload.MaxSize,
		VideoExtensions: cfg.Upload.VideoExtensions,
		AudioExtensions: cfg.Upload.AudioExtensions,
		FrameFPS:        cfg.Processing.FrameFPS,
	}, logger, media.WithMetrics(m))
	a.Annotations = annotations.NewService(annotations.NewRepository(gormDB), a.Authz, a.Publisher, logger)
	a.Batch = batch.NewService(gormDB, a.Authz, a.Dispatcher, a.Store, logger)

	analyzer := o.analyzer
	if analyzer == nil {
		analyzer = ffmpeg.New(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.FFmpegTimeout)
	}
	a.Pipeline = pipeline.New(analyzer, a.Store, media.NewRepository(gormDB), a.Annotations, a.Publisher, pipeline.Config{
		TempDir:  cfg.Storage.TempDir,
		FrameFPS: cfg.Processing.FrameFPS,
	}, logger)

	return a, nil
}

// NewStore opens the configured object store
func NewStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "", "local":
		store, err := storage.NewLocalStore(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("opening local store: %w", err)
		}
		return store, nil
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:             cfg.S3.Bucket,
			Region:             cfg.S3.Region,
			Endpoint:           cfg.S3.Endpoint,
			AccessKey:          cfg.S3.AccessKey,
			SecretKey:          cfg.S3.SecretKey,
			UsePathStyle:       cfg.S3.UsePathStyle,
			MultipartThreshold: cfg.S3.MultipartThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("opening s3 store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// NewPublisher returns a Kafka publisher when events are enabled
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, logger)
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}
	return p, nil
}

// Dependencies returns the handler dependencies
func (a *App) Dependencies() *types.Dependencies {
	return &types.Dependencies{
		Config:            a.Config,
		DB:                a.DB,
		Auth:              a.Auth,
		Authz:             a.Authz,
		UserService:       a.Users,
		ProjectService:    a.Projects,
		LabelService:      a.Labels,
		MediaService:      a.Media,
		AnnotationService: a.Annotations,
		BatchService:      a.Batch,
		JobService:        a.Jobs,
		Metrics:           a.Metrics,
	}
}

// Processors returns one processor per job type
func (a *App) Processors() []workers.JobProcessor {
	return []workers.JobProcessor{
		workers.NewProbeProcessor(a.Jobs, a.Pipeline, a.Logger),
		workers.NewFramesProcessor(a.Jobs, a.Pipeline, a.Logger),
		workers.NewSegmentProcessor(a.Jobs, a.Pipeline, a.Logger),
		workers.NewWaveformProcessor(a.Jobs, a.Pipeline, a.Logger),
		workers.NewExportProcessor(a.Jobs, a.Batch, a.Logger),
		workers.NewStatisticsProcessor(a.Jobs, a.Batch, a.Logger),
		workers.NewBatchReviewProcessor(a.Jobs, a.Batch, a.Logger),
		workers.NewCleanupProcessor(a.Jobs, a.Batch, a.Logger),
	}
}

// Queue returns the settings of a named queue
func (a *App) Queue(name string) (config.QueueConfig, error) {
	for _, q := range []config.QueueConfig{a.Config.Queues.Media, a.Config.Queues.Annotation} {
		if q.Name == name {
			return q, nil
		}
	}
	return config.QueueConfig{}, fmt.Errorf("unknown queue %q", name)
}

// WorkerPool builds a pool for queue with the processors of the job types
// routed to it
func (a *App) WorkerPool(queue config.QueueConfig) *workers.WorkerPool {
	pool := workers.NewWorkerPool(a.Jobs, queue.Name, queue.Workers, a.Config.Processing.PollInterval,
		a.Logger, a.Metrics, workers.WithStaleAfter(queue.HardLimit))

	routed := a.Dispatcher.Types(queue.Name)
	for _, p := range a.Processors() {
		for _, jobType := range routed {
			if p.CanProcess(jobType) {
				pool.RegisterProcessor(p)
				break
			}
		}
	}
	return pool
}

// CleanupScheduler builds the periodic maintenance scheduler
func (a *App) CleanupScheduler() *cleanup.Scheduler {
	var sweeper *cleanup.Sweeper
	if a.Config.Storage.TempDir != "" {
		sweeper = cleanup.NewSweeper(a.Config.Storage.TempDir, a.Config.Cleanup.TempMaxAge, a.Logger)
	}
	return cleanup.NewScheduler(a.Config.Cleanup, a.Dispatcher, a.Jobs, sweeper, a.Logger)
}

// Close releases the event publisher and the database
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

