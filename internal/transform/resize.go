package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelfit/internal/domain"
)

// resampleFilter is shared by every fit mode.
var resampleFilter = imaging.Lanczos

// Resize writes the resampled source into the output raster according to the
// requested fit mode.
type Resize struct{}

func (Resize) Name() string { return "resize" }

func (Resize) Handle(p *Processable) {
	if p.Record.ImageResized {
		return
	}

	opts := p.Options.Resize
	switch opts.Mode {
	case domain.FitPad, domain.FitContain:
		Canvas{}.Handle(p)
		srcW, srcH := p.sourceSize()
		fitW, fitH := fitWithin(srcW, srcH, opts.Width, opts.Height)
		composite(p.Output, imaging.Resize(p.Source, fitW, fitH, resampleFilter))
	case domain.FitScaleDown:
		p.Output = opaque(imaging.Fit(p.Source, opts.Width, opts.Height, resampleFilter))
	case domain.FitCover:
		p.Output = opaque(imaging.Fill(p.Source, opts.Width, opts.Height, imaging.Center, resampleFilter))
	default:
		p.Output = opaque(imaging.Resize(p.Source, opts.Width, opts.Height, resampleFilter))
	}

	p.Record.ImageResized = true
}

// fitWithin returns the largest size with the source's aspect ratio that fits
// inside maxW x maxH. Upscaling is allowed.
func fitWithin(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}

	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	w := clamp(int(math.Round(float64(srcW)*scale)), 1, maxW)
	h := clamp(int(math.Round(float64(srcH)*scale)), 1, maxH)
	return w, h
}

// composite centres overlay on canvas, dropping overlay alpha. Iteration is
// bounded by the overlay so degenerate overlays are a no-op.
func composite(canvas, overlay *image.NRGBA) {
	ob := overlay.Bounds()
	overlayW, overlayH := ob.Dx(), ob.Dy()
	offsetX := (canvas.Rect.Dx() - overlayW) / 2
	offsetY := (canvas.Rect.Dy() - overlayH) / 2

	for y := 0; y < overlayH; y++ {
		for x := 0; x < overlayW; x++ {
			dst := image.Pt(canvas.Rect.Min.X+x+offsetX, canvas.Rect.Min.Y+y+offsetY)
			if !dst.In(canvas.Rect) {
				continue
			}
			si := overlay.PixOffset(ob.Min.X+x, ob.Min.Y+y)
			di := canvas.PixOffset(dst.X, dst.Y)
			copy(canvas.Pix[di:di+3], overlay.Pix[si:si+3])
			canvas.Pix[di+3] = 0xff
		}
	}
}

// opaque drops the alpha channel in place.
func opaque(img *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
