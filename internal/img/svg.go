package img

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Vector is a parsed SVG document with its declared size.
type Vector struct {
	icon   *oksvg.SvgIcon
	Width  float64
	Height float64
}

// ParseVector reads an SVG document. The declared size comes from the root
// width and height attributes, falling back to the viewBox.
func ParseVector(data []byte) (*Vector, error) {
	w, h, err := declaredSize(data)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	return &Vector{icon: icon, Width: w, Height: h}, nil
}

// Bounds returns the integer intrinsic size, rounded to the nearest pixel.
func (v *Vector) Bounds() (int, int) {
	return int(math.Round(v.Width)), int(math.Round(v.Height))
}

// RasterSize picks the raster size for a requested bound. Width alone fits to
// width, height alone fits to height and both pick whichever implies the
// larger scale factor. Without a bound the intrinsic size is used.
func (v *Vector) RasterSize(width, height int) (int, int) {
	iw, ih := v.Width, v.Height
	var scale float64
	switch {
	case width > 0 && height > 0:
		scale = math.Max(float64(width)/iw, float64(height)/ih)
	case width > 0:
		scale = float64(width) / iw
	case height > 0:
		scale = float64(height) / ih
	default:
		scale = 1
	}
	rw := int(math.Round(iw * scale))
	rh := int(math.Round(ih * scale))
	return max(rw, 1), max(rh, 1)
}

// Rasterize renders the document into a width x height RGBA image.
func (v *Vector) Rasterize(width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("rasterize: invalid size %dx%d", width, height)
	}
	v.icon.SetTarget(0, 0, float64(width), float64(height))
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	v.icon.Draw(raster, 1.0)
	return rgba, nil
}

type svgRoot struct {
	XMLName xml.Name
	Width   string `xml:"width,attr"`
	Height  string `xml:"height,attr"`
	ViewBox string `xml:"viewBox,attr"`
}

func declaredSize(data []byte) (float64, float64, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return 0, 0, fmt.Errorf("parse svg: no root element")
		}
		if err != nil {
			return 0, 0, fmt.Errorf("parse svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0, fmt.Errorf("parse svg: root element is %q", start.Name.Local)
		}
		var root svgRoot
		if err := dec.DecodeElement(&root, &start); err != nil {
			return 0, 0, fmt.Errorf("parse svg: %w", err)
		}
		return root.size()
	}
}

func (r svgRoot) size() (float64, float64, error) {
	var vbW, vbH float64
	if fields := strings.FieldsFunc(r.ViewBox, func(c rune) bool { return c == ' ' || c == ',' }); len(fields) == 4 {
		vbW, _ = strconv.ParseFloat(fields[2], 64)
		vbH, _ = strconv.ParseFloat(fields[3], 64)
	}
	w, okW := length(r.Width)
	h, okH := length(r.Height)
	switch {
	case okW && okH:
	case okW && vbW > 0 && vbH > 0:
		h = w * vbH / vbW
	case okH && vbW > 0 && vbH > 0:
		w = h * vbW / vbH
	default:
		w, h = vbW, vbH
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("parse svg: no usable width/height or viewBox")
	}
	return w, h, nil
}

// length parses an absolute SVG length. Percentages and unknown units are
// rejected.
func length(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "%") {
		return 0, false
	}
	units := map[string]float64{"px": 1, "pt": 4.0 / 3.0, "pc": 16, "mm": 96 / 25.4, "cm": 96 / 2.54, "in": 96}
	scale := 1.0
	for u, f := range units {
		if strings.HasSuffix(s, u) {
			s, scale = strings.TrimSuffix(s, u), f
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * scale, true
}
