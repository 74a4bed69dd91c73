// Package converters wraps the external media tools consumed as black-box
// capabilities: probing a container for its streams, and re-encoding
// arbitrary frames into an intermediate format the native codec can read.
package converters

import (
	"context"
	"strings"
)

// Prober inspects bytes as a multiplexed media container.
type Prober interface {
	Probe(ctx context.Context, data []byte) (*ProbeResult, error)
}

// FrameEncoder transcodes bytes into a lossless, animation-capable WebP.
type FrameEncoder interface {
	EncodeIntermediate(ctx context.Context, data []byte) ([]byte, error)
}

// ProbeResult is the subset of ffprobe's JSON report the service relies on.
type ProbeResult struct {
	Streams []Stream  `json:"streams"`
	Format  Container `json:"format"`
}

// Stream describes a single elementary stream.
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Container describes the demuxer that recognised the input.
type Container struct {
	FormatName string `json:"format_name"`
}

// FirstVideoStream returns the first stream carrying pictures.
func (r *ProbeResult) FirstVideoStream() (Stream, bool) {
	if r == nil {
		return Stream{}, false
	}
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return Stream{}, false
}
