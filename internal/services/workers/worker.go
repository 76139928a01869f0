package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/annotation-api/internal/metrics"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultStaleAfter   = 30 * time.Minute
	defaultAbandonGrace = 30 * time.Second
)

// JobProcessor defines the interface for processing different job types.
// ProcessJob returns the result map stored on the completed job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error)
	CanProcess(jobType models.JobType) bool
}

// Worker is one processing slot. It never holds more than one job.
type Worker struct {
	id           string
	queue        string
	jobService   jobs.Service
	processors   []JobProcessor
	stopChan     chan struct{}
	wg           sync.WaitGroup
	pollInterval time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
	abandonGrace time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(id, queue string, jobService jobs.Service, pollInterval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:           id,
		queue:        queue,
		jobService:   jobService,
		processors:   make([]JobProcessor, 0),
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("worker_id", id), zap.String("queue", queue)),
		metrics:      m,
		abandonGrace: defaultAbandonGrace,
	}
}

// RegisterProcessor registers a job processor
func (w *Worker) RegisterProcessor(processor JobProcessor) {
	w.processors = append(w.processors, processor)
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker and waits for the current job to finish
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Debug("Worker starting")
	defer w.logger.Debug("Worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick
			for w.processNextJob(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-w.stopChan:
					return
				default:
				}
			}
		}
	}
}

// supportedTypes collects the job types handled by registered processors
func (w *Worker) supportedTypes() []models.JobType {
	var types []models.JobType
	for _, jobType := range models.AllJobTypes() {
		for _, p := range w.processors {
			if p.CanProcess(jobType) {
				types = append(types, jobType)
				break
			}
		}
	}
	return types
}

func (w *Worker) processorFor(jobType models.JobType) JobProcessor {
	for _, p := range w.processors {
		if p.CanProcess(jobType) {
			return p
		}
	}
	return nil
}

// processNextJob claims and runs one job. It reports whether a job was claimed.
func (w *Worker) processNextJob(ctx context.Context) bool {
	types := w.supportedTypes()
	if len(types) == 0 {
		w.logger.Warn("No job processors registered")
		return false
	}

	job, err := w.jobService.ClaimNextJob(ctx, w.id, w.queue, types)
	if err != nil {
		if !errors.Is(err, jobs.ErrNoJobsAvailable) && ctx.Err() == nil {
			w.logger.Error("Failed to claim job", zap.Error(err))
		}
		return false
	}

	w.execute(ctx, job)
	return true
}

type outcome struct {
	result models.JobResult
	err    error
}

// execute runs job under its time limits. The processor runs in its own
// goroutine. When the hard limit fires the job is failed at once and any
// later outcome from the processor is discarded; the worker then waits up to
// abandonGrace for the processor to return so the slot is free before the
// next claim.
func (w *Worker) execute(ctx context.Context, job *models.Job) {
	logger := w.logger.With(zap.Uint("job_id", job.ID), zap.String("type", string(job.Type)))
	started := time.Now()
	w.metrics.WorkerBusy(w.queue, 1)
	defer w.metrics.WorkerBusy(w.queue, -1)

	processor := w.processorFor(job.Type)
	if processor == nil {
		w.fail(ctx, logger, job, models.NewJobError(models.ErrorTypeSystem, "no_processor",
			fmt.Sprintf("no processor for job type %s", job.Type), "", nil))
		return
	}

	jobCtx := ctx
	var cancel context.CancelFunc = func() {}
	if hard := job.HardLimit(); hard > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, hard)
	}
	defer cancel()
	jobCtx, stopSoft := jobs.WithSoftLimit(jobCtx, job.SoftLimit())
	defer stopSoft()

	logger.Info("Job started",
		zap.Duration("soft_limit", job.SoftLimit()),
		zap.Duration("hard_limit", job.HardLimit()))

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: models.NewJobError(models.ErrorTypeSystem, "panic",
					fmt.Sprintf("processor panicked: %v", r), "", nil)}
			}
		}()
		result, err := processor.ProcessJob(jobCtx, job)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
		// both channels may be ready; a result that lands after the deadline
		// still counts as an overrun
		if hardDeadlinePassed(ctx, jobCtx) {
			w.failHardLimit(ctx, logger, job, time.Since(started), out.err)
			return
		}
	case <-jobCtx.Done():
		if hardDeadlinePassed(ctx, jobCtx) {
			w.failHardLimit(ctx, logger, job, time.Since(started), jobCtx.Err())
			w.awaitAbandoned(logger, done)
			return
		}
		out = <-done
	}
	elapsed := time.Since(started)

	if jobs.SoftLimitExceeded(jobCtx) {
		w.metrics.RecordSoftLimitExceeded(w.queue, string(job.Type))
		logger.Warn("Job exceeded soft limit", zap.Duration("elapsed", elapsed))
	}

	if out.err != nil {
		w.metrics.RecordProcessed(w.queue, string(job.Type), string(models.JobStatusFailed), elapsed)
		w.fail(ctx, logger, job, out.err)
		return
	}

	if err := w.jobService.CompleteJob(ctx, job.ID, out.result); err != nil {
		logger.Error("Failed to complete job", zap.Error(err))
		return
	}
	w.metrics.RecordProcessed(w.queue, string(job.Type), string(models.JobStatusCompleted), elapsed)
	logger.Info("Job completed", zap.Duration("elapsed", elapsed))
}

// hardDeadlinePassed reports whether jobCtx ended on its own deadline rather
// than through cancellation of the worker's context
func hardDeadlinePassed(parent, jobCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded)
}

func (w *Worker) failHardLimit(ctx context.Context, logger *zap.Logger, job *models.Job, elapsed time.Duration, cause error) {
	w.metrics.RecordHardLimitExceeded(w.queue, string(job.Type))
	w.metrics.RecordProcessed(w.queue, string(job.Type), string(models.JobStatusFailed), elapsed)
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	w.fail(ctx, logger, job, models.NewJobError(models.ErrorTypeTimeout, "hard_limit_exceeded",
		fmt.Sprintf("job exceeded hard limit of %s", job.HardLimit()), details, cause))
}

// awaitAbandoned waits for a processor that outlived its hard limit. One that
// ignores cancellation past the grace period is left behind; its outcome
// lands in the buffered channel and is dropped.
func (w *Worker) awaitAbandoned(logger *zap.Logger, done <-chan outcome) {
	timer := time.NewTimer(w.abandonGrace)
	defer timer.Stop()
	select {
	case out := <-done:
		if out.err == nil {
			logger.Warn("Discarded result of job that finished after its hard limit")
		}
	case <-timer.C:
		logger.Error("Processor ignored cancellation, abandoning it", zap.Duration("grace", w.abandonGrace))
	}
}

func (w *Worker) fail(ctx context.Context, logger *zap.Logger, job *models.Job, err error) {
	classified := Classify(err)
	failErr := w.jobService.FailJobWithDetails(ctx, job.ID, classified.Type, classified.Code, classified.Message, classified.Details)
	if failErr != nil {
		logger.Error("Failed to mark job as failed", zap.Error(failErr), zap.NamedError("cause", err))
	}
}

// Classify turns any processor error into a structured job error. Structured
// errors pass through; AppErrors are mapped by code; anything else is a
// system error.
func Classify(err error) *models.StructuredJobError {
	var structured *models.StructuredJobError
	if errors.As(err, &structured) {
		return structured
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.NewJobError(models.ErrorTypeTimeout, "deadline_exceeded", err.Error(), "", err)
		}
		return models.NewJobError(models.ErrorTypeSystem, "internal", err.Error(), "", err)
	}

	var errorType models.JobErrorType
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		errorType = models.ErrorTypeNotFound
	case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingField:
		errorType = models.ErrorTypeValidation
	case apperrors.ErrCodeExternalService:
		errorType = models.ErrorTypeUpstream
	case apperrors.ErrCodeTimeout:
		errorType = models.ErrorTypeTimeout
	default:
		errorType = models.ErrorTypeSystem
	}

	details := ""
	if appErr.Cause != nil {
		details = appErr.Cause.Error()
	}
	return models.NewJobError(errorType, strings.ToLower(string(appErr.Code)), appErr.Message, details, err)
}

// WorkerPool manages the workers of one queue
type WorkerPool struct {
	workers    []*Worker
	queue      string
	jobService jobs.Service
	staleAfter time.Duration
	grace      time.Duration
	logger     *zap.Logger
	mu         sync.RWMutex
	started    bool
}

// PoolOption configures a WorkerPool
type PoolOption func(*WorkerPool)

// WithAbandonGrace sets how long a worker waits for a processor that
// outlived its hard limit before giving up on it
func WithAbandonGrace(d time.Duration) PoolOption {
	return func(p *WorkerPool) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithStaleAfter sets how long a processing job may go without finishing
// before the pool fails it on start. Use the queue's hard limit.
func WithStaleAfter(d time.Duration) PoolOption {
	return func(p *WorkerPool) {
		if d > 0 {
			p.staleAfter = d
		}
	}
}

// NewWorkerPool creates count workers bound to queue
func NewWorkerPool(jobService jobs.Service, queue string, count int, pollInterval time.Duration, logger *zap.Logger, m *metrics.Metrics, opts ...PoolOption) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if count < 1 {
		count = 1
	}
	pool := &WorkerPool{
		workers:    make([]*Worker, count),
		queue:      queue,
		jobService: jobService,
		staleAfter: defaultStaleAfter,
		grace:      defaultAbandonGrace,
		logger:     logger.Named("workers"),
	}
	for _, opt := range opts {
		opt(pool)
	}

	host := uuid.NewString()[:8]
	for i := 0; i < count; i++ {
		workerID := fmt.Sprintf("%s-%s-%d", queue, host, i+1)
		pool.workers[i] = NewWorker(workerID, queue, jobService, pollInterval, pool.logger, m)
		pool.workers[i].abandonGrace = pool.grace
	}
	return pool
}

// RegisterProcessor registers a processor with all workers
func (p *WorkerPool) RegisterProcessor(processor JobProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, worker := range p.workers {
		worker.RegisterProcessor(processor)
	}
}

// Start recovers stale jobs of the queue and starts all workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}

	if _, err := p.jobService.RecoverStale(ctx, p.queue, p.staleAfter); err != nil {
		p.logger.Warn("Failed to recover stale jobs", zap.String("queue", p.queue), zap.Error(err))
	}

	p.logger.Info("Starting worker pool", zap.String("queue", p.queue), zap.Int("workers", len(p.workers)))
	for _, worker := range p.workers {
		worker.Start(ctx)
	}

	p.started = true
	return nil
}

// Stop stops all workers gracefully
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.logger.Info("Stopping worker pool", zap.String("queue", p.queue))
	for _, worker := range p.workers {
		worker.Stop()
	}

	p.started = false
}
