// Package classify determines the true format and intrinsic size of uploaded
// bytes by running an ordered cascade of detection stages.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tendant/simple-media/internal/bytescan"
	"github.com/tendant/simple-media/internal/converters"
	"github.com/tendant/simple-media/internal/format"
	"github.com/tendant/simple-media/internal/img"
)

var (
	// ErrClassificationFailed wraps the error of the last stage that ran.
	ErrClassificationFailed = errors.New("classification failed")

	// ErrAnimatedPNG is raised by the primary stage when a PNG carries an
	// animation control chunk ahead of its pixel data.
	ErrAnimatedPNG = errors.New("png is animated")
)

// Result is a successful classification.
type Result struct {
	Format format.Format
	Width  int
	Height int
}

// Identifier reads image metadata without decoding pixels.
type Identifier interface {
	Identify(data []byte) (img.Metadata, error)
}

// Disambiguator re-identifies bytes whose container label is shared by
// several sibling formats.
type Disambiguator func(data []byte) format.Format

// ISOBMFF is the demuxer label ffprobe reports for every ISO base media file.
const ISOBMFF = "mov,mp4,m4a,3gp,3g2,mj2"

// DefaultCodecs maps prober codec names to format tags.
var DefaultCodecs = map[string]format.Format{
	"apng":   format.APNG,
	"png":    format.PNG,
	"mjpeg":  format.JPEG,
	"gif":    format.GIF,
	"webp":   format.WebP,
	"jpegxl": format.JXL,
	"bmp":    format.BMP,
	"tiff":   format.TIFF,
	"av1":    format.AVIF,
	"hevc":   format.HEIC,
}

// Stage is one step of the cascade. When decides from the error left by the
// stages before it whether the stage runs at all.
type Stage struct {
	Name string
	When func(prev error) bool
	Run  func(ctx context.Context, data []byte) (Result, error)
}

type Classifier struct {
	codec    Identifier
	prober   converters.Prober
	codecs   map[string]format.Format
	disambig map[string]Disambiguator
	stages   []Stage
	logger   *slog.Logger
}

type Option func(*Classifier)

// WithDisambiguation registers fn for the container label formatName,
// replacing any previous entry.
func WithDisambiguation(formatName string, fn Disambiguator) Option {
	return func(c *Classifier) {
		c.disambig[strings.ToLower(formatName)] = fn
	}
}

func WithCodecs(codecs map[string]format.Format) Option {
	return func(c *Classifier) {
		for k, v := range codecs {
			c.codecs[strings.ToLower(k)] = v
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// New builds the default cascade: primary codec, container prober, vector.
func New(codec Identifier, prober converters.Prober, opts ...Option) *Classifier {
	c := &Classifier{
		codec:    codec,
		prober:   prober,
		codecs:   make(map[string]format.Format, len(DefaultCodecs)),
		disambig: map[string]Disambiguator{ISOBMFF: Sniff},
		logger:   slog.Default(),
	}
	for k, v := range DefaultCodecs {
		c.codecs[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}

	c.stages = []Stage{
		{
			Name: "primary",
			When: func(prev error) bool { return true },
			Run:  c.primary,
		},
		{
			Name: "probe",
			When: func(prev error) bool { return prev != nil && !errors.Is(prev, img.ErrNoVectorDelegate) },
			Run:  c.probe,
		},
		{
			Name: "vector",
			When: func(prev error) bool { return errors.Is(prev, img.ErrNoVectorDelegate) },
			Run:  vector,
		},
	}
	return c
}

// Classify runs the cascade over data. The first stage to return a known
// format wins; otherwise the error wraps ErrClassificationFailed.
func (c *Classifier) Classify(ctx context.Context, data []byte) (Result, error) {
	var last error
	for _, stage := range c.stages {
		if !stage.When(last) {
			continue
		}
		res, err := stage.Run(ctx, data)
		if err == nil && !res.Format.Valid() {
			err = fmt.Errorf("%s stage resolved unknown format", stage.Name)
		}
		if err == nil {
			c.logger.Debug("classified", "stage", stage.Name, "format", res.Format, "width", res.Width, "height", res.Height)
			return res, nil
		}
		c.logger.Debug("classification stage failed", "stage", stage.Name, "error", err)
		last = err
	}
	if last == nil {
		last = errors.New("no stage ran")
	}
	return Result{}, fmt.Errorf("%w: %w", ErrClassificationFailed, last)
}

func (c *Classifier) primary(_ context.Context, data []byte) (Result, error) {
	meta, err := c.codec.Identify(data)
	if err != nil {
		return Result{}, err
	}
	if meta.Format == format.PNG && Animated(data) {
		return Result{}, ErrAnimatedPNG
	}
	return Result{Format: meta.Format, Width: meta.Width, Height: meta.Height}, nil
}

var (
	markerIDAT = []byte("IDAT")
	markerACTL = []byte("acTL")
)

// Animated reports whether the acTL chunk marker precedes the first IDAT.
func Animated(data []byte) bool {
	actl := bytescan.Index(data, markerACTL, 0)
	if actl < 0 {
		return false
	}
	idat := bytescan.Index(data, markerIDAT, 0)
	return idat >= 0 && actl < idat
}

func (c *Classifier) probe(ctx context.Context, data []byte) (Result, error) {
	if c.prober == nil {
		return Result{}, errors.New("no prober configured")
	}
	res, err := c.prober.Probe(ctx, data)
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	stream, ok := res.FirstVideoStream()
	if !ok {
		return Result{}, errors.New("probe: no video stream")
	}

	var f format.Format
	if fn, ok := c.disambig[strings.ToLower(res.Format.FormatName)]; ok {
		f = fn(data)
	} else {
		mapped, ok := c.codecs[strings.ToLower(stream.CodecName)]
		if !ok {
			return Result{}, fmt.Errorf("probe: unmapped codec %q", stream.CodecName)
		}
		f = mapped
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return Result{}, fmt.Errorf("probe: stream has no dimensions")
	}
	return Result{Format: f, Width: stream.Width, Height: stream.Height}, nil
}

func vector(_ context.Context, data []byte) (Result, error) {
	v, err := img.ParseVector(data)
	if err != nil {
		return Result{}, err
	}
	w, h := v.Bounds()
	if w <= 0 || h <= 0 {
		return Result{}, fmt.Errorf("vector: invalid dimensions %dx%d", w, h)
	}
	return Result{Format: format.SVG, Width: w, Height: h}, nil
}

// Sniff identifies data by magic number alone.
func Sniff(data []byte) format.Format {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if f := format.FromMIME(m.String()); f != format.Unknown {
			return f
		}
	}
	return format.Unknown
}
