// Package convert re-encodes and resizes stored media, degrading through an
// ffmpeg-produced intermediate when the native codec cannot cope.
package convert

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/tendant/simple-media/internal/converters"
	"github.com/tendant/simple-media/internal/format"
	"github.com/tendant/simple-media/internal/img"
)

// ErrConversionFailed is returned when both the native path and the single
// intermediate retry have failed.
var ErrConversionFailed = errors.New("conversion failed")

// Codec decodes and encodes raster images.
type Codec interface {
	Decode(data []byte, f format.Format) (image.Image, error)
	Encode(m image.Image, f format.Format) ([]byte, error)
}

// Request describes one conversion. Zero Width or Height means the
// dimension is not constrained.
type Request struct {
	Data         []byte
	Source       format.Format
	Target       format.Format
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
}

func (r Request) resizes() bool {
	return (r.Width > 0 && r.Width != r.SourceWidth) || (r.Height > 0 && r.Height != r.SourceHeight)
}

type Engine struct {
	codec   Codec
	encoder converters.FrameEncoder
	logger  *slog.Logger
}

func New(codec Codec, encoder converters.FrameEncoder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{codec: codec, encoder: encoder, logger: logger}
}

// Convert produces req.Data re-encoded as req.Target. When nothing would
// change the input slice is returned as is.
func (e *Engine) Convert(ctx context.Context, req Request) ([]byte, error) {
	if !req.Target.Valid() {
		return nil, fmt.Errorf("%w: invalid target format %q", ErrConversionFailed, req.Target)
	}
	if req.Source == req.Target && !req.resizes() {
		return req.Data, nil
	}

	out, err := e.native(req)
	if err == nil {
		return out, nil
	}

	logger := e.logger.With("source", req.Source, "target", req.Target)
	logger.Warn("native conversion failed, retrying through intermediate", "error", err)

	out, err = e.fallback(ctx, req)
	if err != nil {
		logger.Error("intermediate conversion failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return out, nil
}

func (e *Engine) native(req Request) ([]byte, error) {
	var (
		m   image.Image
		err error
	)
	if req.Source == format.SVG {
		m, err = rasterize(req)
	} else {
		m, err = e.codec.Decode(req.Data, req.Source)
	}
	if err != nil {
		return nil, err
	}
	return e.resizeEncode(m, req)
}

func rasterize(req Request) (image.Image, error) {
	v, err := img.ParseVector(req.Data)
	if err != nil {
		return nil, err
	}
	w, h := v.RasterSize(req.Width, req.Height)
	return v.Rasterize(w, h)
}

// fallback transcodes the original bytes once and retries resize+encode on
// the intermediate.
func (e *Engine) fallback(ctx context.Context, req Request) ([]byte, error) {
	if e.encoder == nil {
		return nil, errors.New("no intermediate encoder configured")
	}
	inter, err := e.encoder.EncodeIntermediate(ctx, req.Data)
	if err != nil {
		return nil, fmt.Errorf("intermediate: %w", err)
	}
	m, err := e.codec.Decode(inter, format.WebP)
	if err != nil {
		return nil, fmt.Errorf("intermediate: %w", err)
	}
	return e.resizeEncode(m, req)
}

func (e *Engine) resizeEncode(m image.Image, req Request) ([]byte, error) {
	return e.codec.Encode(img.Resize(m, req.Width, req.Height), req.Target)
}
