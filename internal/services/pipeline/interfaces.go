package pipeline

import (
	"context"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/pkg/ffmpeg"
)

// Analyzer inspects and transforms local media files. Implemented by *ffmpeg.FFmpeg.
type Analyzer interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
	ExtractFrames(ctx context.Context, inputPath, outDir string, fps float64) ([]string, error)
	CutSegment(ctx context.Context, inputPath, outputPath string, start, end float64) error
}

// MediaRepository is the slice of the media repository the pipeline writes through
type MediaRepository interface {
	GetMediaByID(ctx context.Context, id uint) (*models.MediaFile, error)
	UpdateDerived(ctx context.Context, id uint, duration float64, metadata models.JSONMap) error
	UpsertSegment(ctx context.Context, segment *models.VideoSegment) error
}

// RangeValidator re-checks annotation time ranges once a duration is known
type RangeValidator interface {
	FlagOutOfRange(ctx context.Context, mediaID uint, duration float64) (int64, error)
}

// Config holds pipeline defaults
type Config struct {
	// TempDir is where originals are downloaded for processing. Empty uses os.TempDir.
	TempDir  string
	FrameFPS float64
}

// ProbeOutcome is the result of a successful probe
type ProbeOutcome struct {
	MediaID    uint           `json:"media_id"`
	Duration   float64        `json:"duration"`
	Metadata   models.JSONMap `json:"metadata"`
	OutOfRange int64          `json:"out_of_range"`
}

// WaveformInfo describes the first audio stream of an audio file
type WaveformInfo struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration"`
	BitRate    int64   `json:"bit_rate"`
	Codec      string  `json:"codec"`
}
