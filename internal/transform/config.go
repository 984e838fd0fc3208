package transform

import (
	"fmt"
	"strings"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/dunamismax/pixelfit/internal/domain"
)

// ConfigFrom converts the service settings into a transformer Config.
func ConfigFrom(cfg config.TransformConfig) (Config, error) {
	bg := domain.Black
	if raw := strings.TrimSpace(cfg.DefaultBackground); raw != "" {
		parsed, err := domain.ParseRGB(raw)
		if err != nil {
			return Config{}, fmt.Errorf("default background: %w", err)
		}
		bg = parsed
	}

	format := strings.TrimSpace(cfg.DefaultFormat)
	if format != "" {
		if _, ok := normalizeOutputFormat(format); !ok {
			return Config{}, fmt.Errorf("default format: %w: %q", ErrUnsupportedFormat, format)
		}
	}

	return Config{
		DefaultBackground: bg,
		MaxDimension:      cfg.MaxDimension,
		MaxDPR:            cfg.MaxDPR,
		MaxSourcePixels:   cfg.MaxSourcePixels,
		DefaultQuality:    cfg.DefaultQuality,
		DefaultFormat:     format,
	}, nil
}
