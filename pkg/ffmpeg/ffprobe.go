package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
)

// ffprobeOutput represents the JSON structure returned by ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		Bitrate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Channels     int    `json:"channels"`
		Bitrate      string `json:"bit_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe runs ffprobe and returns format and stream information
func (f *FFmpeg) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, NewProcessingError("probe", filePath, ctx.Err(), stderr.String())
		}
		return nil, NewProcessingError("probe", filePath, err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes(), filePath)
}

// parseProbeOutput converts raw ffprobe JSON into a ProbeResult
func parseProbeOutput(raw []byte, filePath string) (*ProbeResult, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, NewProcessingError("probe_parsing", filePath, err, "")
	}

	result := &ProbeResult{
		FormatName: output.Format.FormatName,
		Duration:   parseFloat(output.Format.Duration),
		Size:       parseInt(output.Format.Size),
		BitRate:    parseInt(output.Format.Bitrate),
		Streams:    make([]Stream, 0, len(output.Streams)),
	}

	for _, s := range output.Streams {
		stream := Stream{
			Index:      s.Index,
			CodecType:  s.CodecType,
			CodecName:  s.CodecName,
			Width:      s.Width,
			Height:     s.Height,
			SampleRate: int(parseInt(s.SampleRate)),
			Channels:   s.Channels,
			BitRate:    parseInt(s.Bitrate),
			Duration:   parseFloat(s.Duration),
		}
		if s.CodecType == "video" && s.AvgFrameRate != "0/0" {
			stream.FrameRate = s.AvgFrameRate
		}
		// Use stream duration if format duration is not available
		if result.Duration == 0 && stream.Duration > 0 {
			result.Duration = stream.Duration
		}
		result.Streams = append(result.Streams, stream)
	}

	if result.Duration <= 0 {
		return nil, NewProcessingError("probe_validation", filePath, ErrNoDuration, "")
	}

	return result, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
