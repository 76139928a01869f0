package pipeline

import (
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/pkg/ffmpeg"
)

// probeMetadata flattens a probe into the derived_metadata column. The map
// only holds values derived from the file so re-probing writes the same JSON.
func probeMetadata(result *ffmpeg.ProbeResult) models.JSONMap {
	metadata := models.JSONMap{
		"format":   result.FormatName,
		"duration": result.Duration,
		"size":     result.Size,
		"bit_rate": result.BitRate,
	}
	if v, ok := result.FirstStream("video"); ok {
		metadata["video_stream"] = map[string]interface{}{
			"codec":      v.CodecName,
			"width":      v.Width,
			"height":     v.Height,
			"frame_rate": v.FrameRate,
			"bit_rate":   v.BitRate,
		}
	}
	if a, ok := result.FirstStream("audio"); ok {
		metadata["audio_stream"] = map[string]interface{}{
			"codec":       a.CodecName,
			"sample_rate": a.SampleRate,
			"channels":    a.Channels,
			"bit_rate":    a.BitRate,
		}
	}
	return metadata
}
