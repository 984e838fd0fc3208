package transform

import "image"

// ProcessRecord tracks which stages have already run against a Processable.
type ProcessRecord struct {
	CanvasProcessed   bool
	ImageResized      bool
	BackgroundApplied bool
}

// Processable is the per-request state threaded through the pipeline. It is
// built once per request and must not be shared between goroutines.
type Processable struct {
	Source  image.Image
	Output  *image.NRGBA
	Record  ProcessRecord
	Options ProcessOptions
}

func NewProcessable(src image.Image, opts ProcessOptions) *Processable {
	return &Processable{
		Source:  src,
		Options: opts,
	}
}

func (p *Processable) sourceSize() (int, int) {
	b := p.Source.Bounds()
	return b.Dx(), b.Dy()
}
