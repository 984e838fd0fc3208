package transform

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/dunamismax/pixelfit/internal/domain"
)

var ErrInvalidOptions = errors.New("invalid transform options")

// ResizeOptions is the resolved target box. DPR has already been applied to
// Width and Height by the time a ResizeOptions exists.
type ResizeOptions struct {
	Width  int
	Height int
	Mode   domain.FitMode
	DPR    int
}

func NewResizeOptions(width, height int, mode domain.FitMode, dpr int) (ResizeOptions, error) {
	if width < 1 || height < 1 {
		return ResizeOptions{}, fmt.Errorf("%w: target %dx%d must be at least 1x1", ErrInvalidOptions, width, height)
	}
	if dpr < 1 {
		return ResizeOptions{}, fmt.Errorf("%w: dpr %d must be positive", ErrInvalidOptions, dpr)
	}
	if mode == "" {
		mode = domain.FitContain
	}
	if _, err := domain.ParseFitMode(string(mode)); err != nil {
		return ResizeOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	return ResizeOptions{
		Width:  width,
		Height: height,
		Mode:   mode,
		DPR:    dpr,
	}, nil
}

type ProcessOptions struct {
	Resize     ResizeOptions
	Background *domain.RGB
	// Fallback fills padded canvases when Background is nil.
	Fallback domain.RGB
}

func (o ProcessOptions) FillColor() color.NRGBA {
	if o.Background != nil {
		return o.Background.NRGBA()
	}
	return o.Fallback.NRGBA()
}
