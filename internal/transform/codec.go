package transform

import (
	"errors"
	"image"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// Codec turns container bytes into pixels and back. The pipeline never sees
// container formats.
type Codec interface {
	Decode(data []byte) (img image.Image, format string, err error)
	Encode(img image.Image, format string, quality int) ([]byte, error)
	// Supports reports whether Encode can produce the normalized format.
	Supports(format string) bool
}

func normalizeOutputFormat(format string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return "jpeg", true
	case "png":
		return "png", true
	case "webp":
		return "webp", true
	default:
		return "", false
	}
}

func ContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
