package workers

import (
	"context"
	"fmt"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/services/pipeline"
	"go.uber.org/zap"
)

// MediaPipeline is the processing surface the media queue drives
type MediaPipeline interface {
	Probe(ctx context.Context, mediaID uint) (*pipeline.ProbeOutcome, error)
	ExtractFrames(ctx context.Context, mediaID uint, fps float64) ([]string, error)
	CutSegment(ctx context.Context, mediaID uint, start, end float64) (*models.VideoSegment, error)
	ExtractWaveform(ctx context.Context, mediaID uint) (*pipeline.WaveformInfo, error)
}

// progressReporter updates job progress, logging failures instead of
// aborting the job
type progressReporter struct {
	jobService jobs.Service
	logger     *zap.Logger
}

func (r progressReporter) progress(ctx context.Context, jobID uint, pct int) {
	if err := r.jobService.UpdateProgress(ctx, jobID, pct); err != nil {
		r.logger.Debug("Failed to update job progress", zap.Uint("job_id", jobID), zap.Error(err))
	}
}

func invalidPayload(job *models.Job, field string) error {
	return models.NewJobError(models.ErrorTypeValidation, "invalid_payload",
		fmt.Sprintf("job %d payload is missing %s", job.ID, field), "", nil)
}

func mediaID(job *models.Job) (uint, error) {
	id, ok := job.GetPayloadUint("media_id")
	if !ok || id == 0 {
		return 0, invalidPayload(job, "media_id")
	}
	return id, nil
}

// ProbeProcessor runs media_probe jobs
type ProbeProcessor struct {
	progressReporter
	pipeline MediaPipeline
}

// NewProbeProcessor creates a probe processor
func NewProbeProcessor(jobService jobs.Service, p MediaPipeline, logger *zap.Logger) *ProbeProcessor {
	return &ProbeProcessor{progressReporter: newReporter(jobService, logger), pipeline: p}
}

func (p *ProbeProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeMediaProbe
}

func (p *ProbeProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := mediaID(job)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 10)

	outcome, err := p.pipeline.Probe(ctx, id)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"media_id":     id,
		"duration":     outcome.Duration,
		"format":       outcome.Metadata["format"],
		"out_of_range": outcome.OutOfRange,
	}, nil
}

// FramesProcessor runs media_frames jobs
type FramesProcessor struct {
	progressReporter
	pipeline MediaPipeline
}

// NewFramesProcessor creates a frame extraction processor
func NewFramesProcessor(jobService jobs.Service, p MediaPipeline, logger *zap.Logger) *FramesProcessor {
	return &FramesProcessor{progressReporter: newReporter(jobService, logger), pipeline: p}
}

func (p *FramesProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeMediaFrames
}

func (p *FramesProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := mediaID(job)
	if err != nil {
		return nil, err
	}
	fps, _ := job.GetPayloadFloat("fps")
	p.progress(ctx, job.ID, 10)

	keys, err := p.pipeline.ExtractFrames(ctx, id, fps)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"media_id":    id,
		"frame_count": len(keys),
		"frame_keys":  keys,
	}, nil
}

// SegmentProcessor runs media_segment jobs
type SegmentProcessor struct {
	progressReporter
	pipeline MediaPipeline
}

// NewSegmentProcessor creates a segment cutting processor
func NewSegmentProcessor(jobService jobs.Service, p MediaPipeline, logger *zap.Logger) *SegmentProcessor {
	return &SegmentProcessor{progressReporter: newReporter(jobService, logger), pipeline: p}
}

func (p *SegmentProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeMediaSegment
}

func (p *SegmentProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := mediaID(job)
	if err != nil {
		return nil, err
	}
	start, ok := job.GetPayloadFloat("start_time")
	if !ok {
		return nil, invalidPayload(job, "start_time")
	}
	end, ok := job.GetPayloadFloat("end_time")
	if !ok {
		return nil, invalidPayload(job, "end_time")
	}
	p.progress(ctx, job.ID, 10)

	segment, err := p.pipeline.CutSegment(ctx, id, start, end)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"media_id":    id,
		"segment_id":  segment.ID,
		"storage_key": segment.StorageKey,
		"start_time":  segment.StartTime,
		"end_time":    segment.EndTime,
	}, nil
}

// WaveformProcessor runs media_waveform jobs
type WaveformProcessor struct {
	progressReporter
	pipeline MediaPipeline
}

// NewWaveformProcessor creates a waveform info processor
func NewWaveformProcessor(jobService jobs.Service, p MediaPipeline, logger *zap.Logger) *WaveformProcessor {
	return &WaveformProcessor{progressReporter: newReporter(jobService, logger), pipeline: p}
}

func (p *WaveformProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeMediaWaveform
}

func (p *WaveformProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	id, err := mediaID(job)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 10)

	info, err := p.pipeline.ExtractWaveform(ctx, id)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, job.ID, 100)

	return models.JobResult{
		"media_id":    id,
		"sample_rate": info.SampleRate,
		"channels":    info.Channels,
		"duration":    info.Duration,
		"bit_rate":    info.BitRate,
		"codec":       info.Codec,
	}, nil
}

func newReporter(jobService jobs.Service, logger *zap.Logger) progressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return progressReporter{jobService: jobService, logger: logger}
}
