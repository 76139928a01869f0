// Package pipeline runs the media processing stages behind the media queue:
// probe, frame extraction, segment cutting and waveform info.
//
// Every stage downloads the original to a private temp dir, works on the
// local copy and removes the dir on return. Stages converge, so running one
// twice leaves the same rows and objects as running it once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/killallgit/annotation-api/internal/events"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/services/media"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/storage"
	"go.uber.org/zap"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultFrameFPS   = 1
)

// Pipeline executes processing stages for one media file at a time
type Pipeline struct {
	analyzer    Analyzer
	store       storage.ObjectStore
	repo        MediaRepository
	annotations RangeValidator
	publisher   events.Publisher
	config      Config
	logger      *zap.Logger
}

// New creates a pipeline. publisher and logger may be nil.
func New(analyzer Analyzer, store storage.ObjectStore, repo MediaRepository, annotations RangeValidator, publisher events.Publisher, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.FrameFPS <= 0 {
		cfg.FrameFPS = defaultFrameFPS
	}
	return &Pipeline{
		analyzer:    analyzer,
		store:       store,
		repo:        repo,
		annotations: annotations,
		publisher:   publisher,
		config:      cfg,
		logger:      logger.Named("pipeline"),
	}
}

// Probe reads duration and stream info, stores them on the media row and
// flags annotations that now fall outside the file
func (p *Pipeline) Probe(ctx context.Context, mediaID uint) (*ProbeOutcome, error) {
	m, err := p.repo.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	outcome, err := p.probe(ctx, m)
	if err != nil {
		events.PublishBestEffort(ctx, p.publisher, p.logger, events.New(events.TypeMediaProcessingFailed, m.ID, map[string]interface{}{
			"stage": "probe",
			"error": err.Error(),
		}))
		return nil, err
	}

	events.PublishBestEffort(ctx, p.publisher, p.logger, events.New(events.TypeMediaProbed, m.ID, map[string]interface{}{
		"project_id":   m.ProjectID,
		"duration":     outcome.Duration,
		"out_of_range": outcome.OutOfRange,
	}))
	return outcome, nil
}

func (p *Pipeline) probe(ctx context.Context, m *models.MediaFile) (*ProbeOutcome, error) {
	local, cleanup, err := p.fetch(ctx, m)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := p.analyzer.Probe(ctx, local)
	if err != nil {
		return nil, p.analyzerError(ctx, "probe", err)
	}
	if err := checkpoint(ctx, "probe"); err != nil {
		return nil, err
	}

	metadata := probeMetadata(result)
	if err := p.repo.UpdateDerived(ctx, m.ID, result.Duration, metadata); err != nil {
		return nil, err
	}

	flagged, err := p.annotations.FlagOutOfRange(ctx, m.ID, result.Duration)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Media probed",
		zap.Uint("media_id", m.ID),
		zap.Float64("duration", result.Duration),
		zap.String("format", result.FormatName),
		zap.Int64("out_of_range", flagged))

	return &ProbeOutcome{
		MediaID:    m.ID,
		Duration:   result.Duration,
		Metadata:   metadata,
		OutOfRange: flagged,
	}, nil
}

// ExtractFrames samples a video at fps and uploads the frames as JPEGs,
// replacing any frames stored by an earlier run. fps <= 0 uses the
// configured default. Returns the stored keys in order.
func (p *Pipeline) ExtractFrames(ctx context.Context, mediaID uint, fps float64) ([]string, error) {
	m, err := p.repo.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.MediaType != models.MediaTypeVideo {
		return nil, apperrors.ValidationError("media_type", "frame extraction requires a video")
	}
	if fps <= 0 {
		fps = p.config.FrameFPS
	}

	local, cleanup, err := p.fetch(ctx, m)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	frames, err := p.analyzer.ExtractFrames(ctx, local, filepath.Join(filepath.Dir(local), "frames"), fps)
	if err != nil {
		return nil, p.analyzerError(ctx, "extract_frames", err)
	}

	// a run at a lower fps writes fewer frames; drop the previous set so no
	// higher-numbered frame outlives it
	if err := p.store.DeletePrefix(ctx, media.FramesPrefix(m.ID)); err != nil {
		return nil, apperrors.UpstreamFailure("object_store", err)
	}

	keys := make([]string, 0, len(frames))
	for _, frame := range frames {
		if err := checkpoint(ctx, "extract_frames"); err != nil {
			return nil, err
		}
		key := media.FrameKey(m.ID, filepath.Base(frame))
		if err := p.upload(ctx, frame, key, "image/jpeg"); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	p.logger.Info("Frames extracted",
		zap.Uint("media_id", m.ID),
		zap.Float64("fps", fps),
		zap.Int("count", len(keys)))
	return keys, nil
}

// CutSegment stream-copies [start, end) of a video into its own object and
// records it. The range is checked before anything is fetched.
func (p *Pipeline) CutSegment(ctx context.Context, mediaID uint, start, end float64) (*models.VideoSegment, error) {
	if start < 0 || end < 0 {
		return nil, apperrors.ValidationError("start_time", "times must be non-negative")
	}
	if start >= end {
		return nil, apperrors.ValidationError("end_time", "start time must be before end time")
	}

	m, err := p.repo.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if err := media.ValidateSegment(m, start, end); err != nil {
		return nil, err
	}

	local, cleanup, err := p.fetch(ctx, m)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out := filepath.Join(filepath.Dir(local), "segment.mp4")
	if err := p.analyzer.CutSegment(ctx, local, out, start, end); err != nil {
		return nil, p.analyzerError(ctx, "cut_segment", err)
	}
	if err := checkpoint(ctx, "cut_segment"); err != nil {
		return nil, err
	}

	key := media.SegmentKey(m.ID, start, end)
	if err := p.upload(ctx, out, key, "video/mp4"); err != nil {
		return nil, err
	}

	segment := &models.VideoSegment{
		MediaFileID: m.ID,
		StartTime:   start,
		EndTime:     end,
		StorageKey:  key,
	}
	if err := p.repo.UpsertSegment(ctx, segment); err != nil {
		return nil, err
	}

	p.logger.Info("Segment cut",
		zap.Uint("media_id", m.ID),
		zap.Float64("start", start),
		zap.Float64("end", end),
		zap.String("key", key))
	return segment, nil
}

// ExtractWaveform reports the audio parameters of an audio file. No bytes are stored.
func (p *Pipeline) ExtractWaveform(ctx context.Context, mediaID uint) (*WaveformInfo, error) {
	m, err := p.repo.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if m.MediaType != models.MediaTypeAudio {
		return nil, apperrors.ValidationError("media_type", "waveform extraction requires an audio file")
	}

	local, cleanup, err := p.fetch(ctx, m)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := p.analyzer.Probe(ctx, local)
	if err != nil {
		return nil, p.analyzerError(ctx, "waveform", err)
	}
	stream, ok := result.FirstStream("audio")
	if !ok {
		return nil, apperrors.ValidationError("media", "file has no audio stream")
	}

	info := &WaveformInfo{
		SampleRate: stream.SampleRate,
		Channels:   stream.Channels,
		Duration:   result.Duration,
		BitRate:    stream.BitRate,
		Codec:      stream.CodecName,
	}
	if info.SampleRate == 0 {
		info.SampleRate = defaultSampleRate
	}
	if info.Channels == 0 {
		info.Channels = defaultChannels
	}
	if info.BitRate == 0 {
		info.BitRate = result.BitRate
	}
	return info, nil
}

// fetch downloads the original into a fresh temp dir. The returned cleanup
// removes the dir and everything written beside the download.
func (p *Pipeline) fetch(ctx context.Context, m *models.MediaFile) (string, func(), error) {
	if err := checkpoint(ctx, "fetch"); err != nil {
		return "", nil, err
	}

	if p.config.TempDir != "" {
		if err := os.MkdirAll(p.config.TempDir, 0o755); err != nil {
			return "", nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create temp dir")
		}
	}
	dir, err := os.MkdirTemp(p.config.TempDir, fmt.Sprintf("media-%d-*", m.ID))
	if err != nil {
		return "", nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create temp dir")
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("Failed to remove temp dir", zap.String("dir", dir), zap.Error(err))
		}
	}

	rc, err := p.store.Get(ctx, m.StorageKey)
	if err != nil {
		cleanup()
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", nil, apperrors.NotFound("media object", m.StorageKey)
		}
		return "", nil, apperrors.UpstreamFailure("object_store", err)
	}
	defer rc.Close()

	local := filepath.Join(dir, "original"+path.Ext(m.StorageKey))
	f, err := os.Create(local)
	if err != nil {
		cleanup()
		return "", nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create temp file")
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, apperrors.UpstreamFailure("object_store", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to write temp file")
	}
	return local, cleanup, nil
}

func (p *Pipeline) upload(ctx context.Context, localPath, key, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to open output")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to stat output")
	}
	if err := p.store.Put(ctx, key, f, info.Size(), contentType); err != nil {
		return apperrors.UpstreamFailure("object_store", err)
	}
	return nil
}

// analyzerError maps an analyzer failure to Timeout when the job ran out of
// time and to UpstreamFailure otherwise
func (p *Pipeline) analyzerError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.TimeoutError(op, "job deadline").WithCause(err)
	}
	p.logger.Warn("Analyzer failed", zap.String("op", op), zap.Error(err))
	return apperrors.UpstreamFailure("ffmpeg", err)
}

// checkpoint aborts between stages once the job's soft limit has passed
func checkpoint(ctx context.Context, op string) error {
	if jobs.SoftLimitExceeded(ctx) {
		return apperrors.TimeoutError(op, "soft limit")
	}
	if err := ctx.Err(); err != nil {
		return apperrors.TimeoutError(op, "job deadline").WithCause(err)
	}
	return nil
}
