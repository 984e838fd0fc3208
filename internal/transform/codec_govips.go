//go:build govips && cgo

package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsCodec decodes anything libvips can load (HEIF, AVIF, TIFF, ...) and
// adds WebP export. Pixels cross the cgo boundary as lossless PNG.
type govipsCodec struct{}

func (govipsCodec) Decode(data []byte) (image.Image, string, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, "", err
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, "", fmt.Errorf("auto-rotate: %w", err)
	}

	params := vips.NewPngExportParams()
	params.Compression = 0
	raw, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, "", fmt.Errorf("export intermediate png: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode intermediate png: %w", err)
	}
	return img, sourceFormat(vips.DetermineImageType(data)), nil
}

func (govipsCodec) Supports(format string) bool {
	switch format {
	case "jpeg", "png", "webp":
		return true
	default:
		return false
	}
}

func (govipsCodec) Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.NoCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode intermediate png: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load intermediate png: %w", err)
	}
	defer ref.Close()

	switch format {
	case "jpeg":
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case "png":
		data, _, err := ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err := ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func sourceFormat(t vips.ImageType) string {
	switch t {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypeTIFF:
		return "tiff"
	case vips.ImageTypeHEIF:
		return "heif"
	case vips.ImageTypeAVIF:
		return "avif"
	default:
		return "unknown"
	}
}
