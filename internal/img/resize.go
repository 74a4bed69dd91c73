package img

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resize stretches m to exactly width x height, ignoring aspect ratio. A
// non-positive dimension keeps its current value; the image is returned
// untouched when nothing changes.
func Resize(m image.Image, width, height int) image.Image {
	b := m.Bounds()
	if width <= 0 {
		width = b.Dx()
	}
	if height <= 0 {
		height = b.Dy()
	}
	if width == b.Dx() && height == b.Dy() {
		return m
	}
	return imaging.Resize(m, width, height, imaging.Lanczos)
}

// FitWidth returns the height that keeps the aspect ratio of a w x h image
// scaled to targetWidth, rounding up.
func FitWidth(w, h, targetWidth int) int {
	if w <= 0 || targetWidth <= 0 {
		return h
	}
	return (h*targetWidth + w - 1) / w
}
