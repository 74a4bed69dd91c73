// Package format defines the canonical media format tags and the mappings
// between tags, delivery extensions and MIME types.
package format

import "strings"

// Format is a canonical format tag as persisted on an artifact.
type Format string

const (
	PNG     Format = "PNG"
	APNG    Format = "APNG"
	JPEG    Format = "JPEG"
	GIF     Format = "GIF"
	WebP    Format = "WEBP"
	JXL     Format = "JXL"
	SVG     Format = "SVG"
	BMP     Format = "BMP"
	TIFF    Format = "TIFF"
	AVIF    Format = "AVIF"
	HEIC    Format = "HEIC"
	MP4     Format = "MP4"
	Unknown Format = "UNKNOWN"
)

var known = map[Format]bool{
	PNG: true, APNG: true, JPEG: true, GIF: true, WebP: true, JXL: true,
	SVG: true, BMP: true, TIFF: true, AVIF: true, HEIC: true, MP4: true,
}

// Parse resolves a tag case-insensitively. Unrecognised input yields Unknown.
func Parse(s string) Format {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	if known[f] {
		return f
	}
	return Unknown
}

// Valid reports whether f is a recognised tag other than Unknown.
func (f Format) Valid() bool { return known[f] }

func (f Format) String() string { return string(f) }

// extensions lists the formats the CDN can deliver, keyed by file extension.
var extensions = map[string]Format{
	".jxl":  JXL,
	".webp": WebP,
	".png":  PNG,
	".jpg":  JPEG,
	".jpeg": JPEG,
	".gif":  GIF,
}

var mimeTypes = map[Format]string{
	JXL:  "image/jxl",
	WebP: "image/webp",
	PNG:  "image/png",
	APNG: "image/apng",
	JPEG: "image/jpeg",
	GIF:  "image/gif",
	SVG:  "image/svg+xml",
	BMP:  "image/bmp",
	TIFF: "image/tiff",
	AVIF: "image/avif",
	HEIC: "image/heic",
	MP4:  "video/mp4",
}

// FromExtension maps a delivery extension such as ".webp" to its format.
func FromExtension(ext string) (Format, bool) {
	f, ok := extensions[strings.ToLower(ext)]
	return f, ok
}

// Extension returns the canonical delivery extension for f, or "" when f
// cannot be delivered.
func Extension(f Format) string {
	switch f {
	case JPEG:
		return ".jpg"
	case JXL, WebP, PNG, GIF:
		return "." + strings.ToLower(string(f))
	}
	return ""
}

// Deliverable reports whether f can be produced by the CDN.
func Deliverable(f Format) bool { return Extension(f) != "" }

// MIME returns the content type for f, defaulting to application/octet-stream.
func MIME(f Format) string {
	if m, ok := mimeTypes[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// FromMIME maps a sniffed content type back to a format tag.
func FromMIME(mime string) Format {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/vnd.mozilla.apng":
		return APNG
	case "image/heif":
		return HEIC
	}
	for f, m := range mimeTypes {
		if m == mime {
			return f
		}
	}
	return Unknown
}
