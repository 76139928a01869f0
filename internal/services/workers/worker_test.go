package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/testutil"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// funcProcessor adapts a function into a JobProcessor
type funcProcessor struct {
	jobType models.JobType
	fn      func(ctx context.Context, job *models.Job) (models.JobResult, error)
}

func (p *funcProcessor) CanProcess(jobType models.JobType) bool { return jobType == p.jobType }

func (p *funcProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	return p.fn(ctx, job)
}

func newJobService(t *testing.T) jobs.Service {
	t.Helper()
	return jobs.NewService(jobs.NewRepository(testutil.NewDB(t)), nil)
}

func enqueue(t *testing.T, svc jobs.Service, soft, hard time.Duration) *models.Job {
	t.Helper()
	job, err := svc.EnqueueJob(context.Background(), models.JobTypeMediaProbe,
		models.JobPayload{"media_id": 1},
		jobs.WithQueue("media"), jobs.WithTimeLimits(soft, hard), jobs.WithMaxRetries(1))
	require.NoError(t, err)
	return job
}

func waitForStatus(t *testing.T, svc jobs.Service, id uint, status models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = svc.GetJob(context.Background(), id)
		return err == nil && job.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %d never reached %s", id, status)
	return job
}

func TestWorkerPool_CompletesJob(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(svc, "media", 2, 10*time.Millisecond, nil, nil)
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			return models.JobResult{"duration": 60.0}, nil
		},
	})
	job := enqueue(t, svc, time.Minute, 2*time.Minute)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	done := waitForStatus(t, svc, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.EqualValues(t, 60.0, done.Result["duration"])
}

func TestWorkerPool_StartTwice(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(svc, "media", 1, time.Hour, nil, nil)
	require.NoError(t, pool.Start(context.Background()))
	assert.Error(t, pool.Start(context.Background()))
	pool.Stop()
	pool.Stop()
}

func TestWorker_HardLimitWaitsForProcessor(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var returned atomic.Bool
	pool := NewWorkerPool(svc, "media", 1, 10*time.Millisecond, nil, nil)
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			<-ctx.Done()
			// a slow unwind still occupies the slot
			time.Sleep(50 * time.Millisecond)
			returned.Store(true)
			return nil, ctx.Err()
		},
	})
	job := enqueue(t, svc, 0, time.Second)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	failed := waitForStatus(t, svc, job.ID, models.JobStatusPermanentlyFailed)
	assert.Equal(t, string(models.ErrorTypeTimeout), failed.ErrorType)
	assert.Equal(t, "hard_limit_exceeded", failed.ErrorCode)
	require.Eventually(t, returned.Load, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_HardLimitOverrunWithSuccessFails(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var returned atomic.Bool
	pool := NewWorkerPool(svc, "media", 1, 10*time.Millisecond, nil, nil)
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			time.Sleep(1500 * time.Millisecond)
			returned.Store(true)
			return models.JobResult{"ok": true}, nil
		},
	})
	job := enqueue(t, svc, 0, time.Second)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	failed := waitForStatus(t, svc, job.ID, models.JobStatusPermanentlyFailed)
	assert.Equal(t, "hard_limit_exceeded", failed.ErrorCode)
	assert.False(t, returned.Load(), "job must fail before the processor returns")

	// the late success is discarded
	require.Eventually(t, returned.Load, 3*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	after, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, after.Status)
	assert.Nil(t, after.Result["ok"])
}

func TestWorker_HardLimitAbandonsStuckProcessor(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	var stuckID atomic.Uint32
	pool := NewWorkerPool(svc, "media", 1, 10*time.Millisecond, nil, nil, WithAbandonGrace(50*time.Millisecond))
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			if uint32(job.ID) == stuckID.Load() {
				<-release
			}
			return models.JobResult{}, nil
		},
	})
	stuck := enqueue(t, svc, 0, time.Second)
	stuckID.Store(uint32(stuck.ID))
	next, err := svc.EnqueueJob(context.Background(), models.JobTypeMediaProbe,
		models.JobPayload{"media_id": 2}, jobs.WithQueue("media"), jobs.WithTimeLimits(0, 0))
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()
	defer close(release)

	failed := waitForStatus(t, svc, stuck.ID, models.JobStatusPermanentlyFailed)
	assert.Equal(t, "hard_limit_exceeded", failed.ErrorCode)
	// the slot is reused once the grace period runs out
	waitForStatus(t, svc, next.ID, models.JobStatusCompleted)
}

func TestWorker_SoftLimitCheckpoint(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(svc, "media", 1, 10*time.Millisecond, nil, nil)
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			select {
			case <-jobs.SoftLimitDone(ctx):
				return nil, apperrors.TimeoutError("media probe", "soft limit")
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	job := enqueue(t, svc, time.Second, 10*time.Second)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	failed := waitForStatus(t, svc, job.ID, models.JobStatusPermanentlyFailed)
	assert.Equal(t, string(models.ErrorTypeTimeout), failed.ErrorType)
	assert.NotEqual(t, "hard_limit_exceeded", failed.ErrorCode)
}

func TestWorker_PanicFailsJob(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewWorkerPool(svc, "media", 1, 10*time.Millisecond, nil, nil)
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			panic("boom")
		},
	})
	job := enqueue(t, svc, 0, 0)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	failed := waitForStatus(t, svc, job.ID, models.JobStatusPermanentlyFailed)
	assert.Equal(t, "panic", failed.ErrorCode)
}

func TestWorker_OneJobPerSlot(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu       sync.Mutex
		running  int
		maxSeen  int
		finished atomic.Int32
	)
	pool := NewWorkerPool(svc, "media", 2, 5*time.Millisecond, nil, nil)
	pool.RegisterProcessor(&funcProcessor{
		jobType: models.JobTypeMediaProbe,
		fn: func(ctx context.Context, job *models.Job) (models.JobResult, error) {
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			finished.Add(1)
			return models.JobResult{}, nil
		},
	})
	for i := 0; i < 6; i++ {
		enqueue(t, svc, 0, 0)
	}

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.Eventually(t, func() bool { return finished.Load() == 6 }, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestWorkerPool_RecoversStaleOnStart(t *testing.T) {
	svc := newJobService(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	job := enqueue(t, svc, 0, 0)
	claimed, err := svc.ClaimNextJob(ctx, "media-dead-1", "media", []models.JobType{models.JobTypeMediaProbe})
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	// the stale window is shorter than the time since the claim
	time.Sleep(20 * time.Millisecond)
	pool := NewWorkerPool(svc, "media", 1, time.Hour, nil, nil, WithStaleAfter(10*time.Millisecond))
	require.NoError(t, pool.Start(ctx))
	pool.Stop()

	recovered, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, recovered.Status)
	assert.Equal(t, "stale_worker", recovered.ErrorCode)
}

func TestClassify(t *testing.T) {
	structured := models.NewJobError(models.ErrorTypeValidation, "invalid_payload", "bad", "", nil)

	tests := []struct {
		name     string
		err      error
		wantType models.JobErrorType
		wantCode string
	}{
		{"structured passes through", structured, models.ErrorTypeValidation, "invalid_payload"},
		{"not found", apperrors.NotFound("media", 7), models.ErrorTypeNotFound, "not_found"},
		{"validation", apperrors.ValidationError("start_time", "negative"), models.ErrorTypeValidation, "validation"},
		{"upstream", apperrors.UpstreamFailure("ffmpeg", errors.New("exit 1")), models.ErrorTypeUpstream, "external_service"},
		{"timeout", apperrors.TimeoutError("probe", "30s"), models.ErrorTypeTimeout, "timeout"},
		{"database", apperrors.DatabaseError("update", errors.New("locked")), models.ErrorTypeSystem, "database_query"},
		{"deadline", context.DeadlineExceeded, models.ErrorTypeTimeout, "deadline_exceeded"},
		{"plain", errors.New("oops"), models.ErrorTypeSystem, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
	assert.Same(t, structured, Classify(structured))
}
