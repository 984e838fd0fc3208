package transform

import (
	"image"

	"github.com/disintegration/imaging"
)

// Canvas allocates the target-sized output raster, background-filled for
// padding modes.
type Canvas struct{}

func (Canvas) Name() string { return "canvas" }

func (Canvas) Handle(p *Processable) {
	if p.Record.CanvasProcessed {
		return
	}

	w, h := p.Options.Resize.Width, p.Options.Resize.Height
	if p.Options.Resize.Mode.Pads() {
		p.Output = imaging.New(w, h, p.Options.FillColor())
		p.Record.BackgroundApplied = true
	} else {
		p.Output = image.NewNRGBA(image.Rect(0, 0, w, h))
	}
	p.Record.CanvasProcessed = true
}
