// Package img is the native image codec: metadata identification, decoding,
// exact-size resizing, encoding and vector rasterisation.
package img

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/jpegxl"
	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"

	"github.com/tendant/simple-media/internal/format"
)

var (
	// ErrNoVectorDelegate is returned by Identify when the input is a vector
	// document. The raster codec cannot read it; the vector renderer can.
	ErrNoVectorDelegate = errors.New("no delegate for vector image")

	// ErrUnsupported is returned for inputs the codec has no reader or writer for.
	ErrUnsupported = errors.New("unsupported image format")

	// ErrFormatMismatch is returned when the bytes are not encoded as the
	// declared format.
	ErrFormatMismatch = errors.New("data does not match declared format")
)

// Metadata is what Identify reports without decoding pixels.
type Metadata struct {
	Format format.Format
	Width  int
	Height int
}

// Options tunes the lossy encoders.
type Options struct {
	WebPQuality int
	JPEGQuality int
	JXLQuality  int
	JXLEffort   int
}

func DefaultOptions() Options {
	return Options{WebPQuality: 80, JPEGQuality: 85, JXLQuality: 85, JXLEffort: 7}
}

// Codec reads and writes the raster formats the service handles natively.
type Codec struct {
	opts Options
}

func NewCodec(opts Options) *Codec {
	def := DefaultOptions()
	if opts.WebPQuality <= 0 {
		opts.WebPQuality = def.WebPQuality
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.JXLQuality <= 0 {
		opts.JXLQuality = def.JXLQuality
	}
	if opts.JXLEffort <= 0 {
		opts.JXLEffort = def.JXLEffort
	}
	return &Codec{opts: opts}
}

// readable lists the formats Decode can read.
var readable = map[format.Format]bool{
	format.PNG:  true,
	format.JPEG: true,
	format.GIF:  true,
	format.WebP: true,
	format.JXL:  true,
	format.BMP:  true,
	format.TIFF: true,
}

// Identify sniffs the magic number and reads the header of data. Animated PNG
// is reported as PNG since only the default image is readable here.
func (c *Codec) Identify(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, fmt.Errorf("identify: empty input")
	}

	mt := mimetype.Detect(data)
	if mt.Is("image/svg+xml") {
		return Metadata{}, ErrNoVectorDelegate
	}

	f := format.Unknown
	for m := mt; m != nil; m = m.Parent() {
		if candidate := format.FromMIME(m.String()); readable[candidate] {
			f = candidate
			break
		}
	}
	if f == format.Unknown {
		return Metadata{}, fmt.Errorf("identify %s: %w", mt.String(), ErrUnsupported)
	}

	cfg, err := decodeConfig(data, f)
	if err != nil {
		return Metadata{}, fmt.Errorf("identify %s: %w", f, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Metadata{}, fmt.Errorf("identify %s: invalid dimensions %dx%d", f, cfg.Width, cfg.Height)
	}
	return Metadata{Format: f, Width: cfg.Width, Height: cfg.Height}, nil
}

func decodeConfig(data []byte, f format.Format) (image.Config, error) {
	r := bytes.NewReader(data)
	switch f {
	case format.PNG:
		return png.DecodeConfig(r)
	case format.JPEG:
		return jpeg.DecodeConfig(r)
	case format.GIF:
		return gif.DecodeConfig(r)
	case format.WebP:
		return xwebp.DecodeConfig(r)
	case format.JXL:
		return jpegxl.DecodeConfig(r)
	case format.BMP:
		return bmp.DecodeConfig(r)
	case format.TIFF:
		return tiff.DecodeConfig(r)
	}
	return image.Config{}, ErrUnsupported
}

// Decode reads the first frame of data, which must be encoded as f.
func (c *Codec) Decode(data []byte, f format.Format) (image.Image, error) {
	r := bytes.NewReader(data)
	var (
		m   image.Image
		err error
	)
	switch f {
	case format.PNG, format.APNG:
		m, err = png.Decode(r)
	case format.JPEG:
		// imaging.Decode sniffs any registered format.
		if !mimetype.Detect(data).Is("image/jpeg") {
			return nil, fmt.Errorf("decode %s: %w", f, ErrFormatMismatch)
		}
		m, err = imaging.Decode(r, imaging.AutoOrientation(true))
	case format.GIF:
		m, err = gif.Decode(r)
	case format.WebP:
		m, err = webp.Decode(r)
	case format.JXL:
		m, err = jpegxl.Decode(r)
	case format.BMP:
		m, err = bmp.Decode(r)
	case format.TIFF:
		m, err = tiff.Decode(r)
	default:
		return nil, fmt.Errorf("decode %s: %w", f, ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	return m, nil
}

// Encode writes m as f.
func (c *Codec) Encode(m image.Image, f format.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case format.PNG:
		err = imaging.Encode(&buf, m, imaging.PNG)
	case format.JPEG:
		err = imaging.Encode(&buf, m, imaging.JPEG, imaging.JPEGQuality(c.opts.JPEGQuality))
	case format.GIF:
		err = imaging.Encode(&buf, m, imaging.GIF)
	case format.BMP:
		err = imaging.Encode(&buf, m, imaging.BMP)
	case format.TIFF:
		err = imaging.Encode(&buf, m, imaging.TIFF)
	case format.WebP:
		err = webp.Encode(&buf, m, webp.Options{Quality: c.opts.WebPQuality})
	case format.JXL:
		err = jpegxl.Encode(&buf, m, jpegxl.Options{Quality: c.opts.JXLQuality, Effort: c.opts.JXLEffort})
	default:
		return nil, fmt.Errorf("encode %s: %w", f, ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return buf.Bytes(), nil
}
