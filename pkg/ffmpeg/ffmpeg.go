package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FramePattern is the output name pattern for extracted frames
const FramePattern = "frame_%04d.jpg"

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}
	return nil
}

// ExtractFrames writes frames sampled at fps into outDir and returns their paths in order
func (f *FFmpeg) ExtractFrames(ctx context.Context, inputPath, outDir string, fps float64) ([]string, error) {
	if fps <= 0 {
		fps = 1
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, NewProcessingError("extract_frames", inputPath, err, "")
	}

	if err := f.run(ctx, "extract_frames", inputPath, frameArgs(inputPath, outDir, fps)); err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, NewProcessingError("extract_frames", inputPath, err, "")
	}
	sortFrames(frames)
	return frames, nil
}

// sortFrames orders frame paths by their numeric index. The %04d pattern
// widens past 9999 frames, so a lexical sort would misplace them.
func sortFrames(frames []string) {
	sort.SliceStable(frames, func(i, j int) bool {
		a, aok := frameIndex(frames[i])
		b, bok := frameIndex(frames[j])
		if aok && bok && a != b {
			return a < b
		}
		if aok != bok {
			return aok
		}
		return frames[i] < frames[j]
	})
}

func frameIndex(path string) (int, bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "frame_"), ".jpg")
	n, err := strconv.Atoi(name)
	return n, err == nil
}

// CutSegment copies the [start, end) range of inputPath into outputPath without re-encoding
func (f *FFmpeg) CutSegment(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	if start < 0 || start >= end {
		return fmt.Errorf("%w: start=%g end=%g", ErrInvalidRange, start, end)
	}
	return f.run(ctx, "cut_segment", inputPath, segmentArgs(inputPath, outputPath, start, end))
}

func frameArgs(inputPath, outDir string, fps float64) []string {
	return []string{
		"-v", "error",
		"-i", inputPath,
		"-vf", "fps=" + formatSeconds(fps),
		"-q:v", "2",
		"-y",
		filepath.Join(outDir, FramePattern),
	}
}

func segmentArgs(inputPath, outputPath string, start, end float64) []string {
	return []string{
		"-v", "error",
		"-ss", formatSeconds(start),
		"-i", inputPath,
		"-t", formatSeconds(end - start),
		"-c:v", "copy",
		"-c:a", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		outputPath,
	}
}

// run executes ffmpeg with the instance timeout bounded by ctx
func (f *FFmpeg) run(ctx context.Context, operation, inputPath string, args []string) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return NewProcessingError(operation, inputPath, ctx.Err(), stderr.String())
		}
		return NewProcessingError(operation, inputPath, err, stderr.String())
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
