package ffmpeg

// ProbeResult is the subset of ffprobe output consumed by the pipeline
type ProbeResult struct {
	Duration   float64  `json:"duration"`    // Duration in seconds
	FormatName string   `json:"format_name"` // Container format (mov,mp4,m4a,...)
	Size       int64    `json:"size"`        // File size in bytes
	BitRate    int64    `json:"bit_rate"`    // Overall bitrate in bits per second
	Streams    []Stream `json:"streams"`
}

// Stream describes one elementary stream
type Stream struct {
	Index      int     `json:"index"`
	CodecType  string  `json:"codec_type"` // video, audio, subtitle, data
	CodecName  string  `json:"codec_name"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  string  `json:"frame_rate,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	BitRate    int64   `json:"bit_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

// FirstStream returns the first stream of the given codec type
func (p *ProbeResult) FirstStream(codecType string) (*Stream, bool) {
	for i := range p.Streams {
		if p.Streams[i].CodecType == codecType {
			return &p.Streams[i], true
		}
	}
	return nil, false
}
