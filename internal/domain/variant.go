package domain

// Variant describes one rendition of a job's source image.
type Variant struct {
	ID         string `json:"id" validate:"required,max=64"`
	Width      int    `json:"width,omitempty" validate:"gte=0"`
	Height     int    `json:"height,omitempty" validate:"gte=0"`
	Fit        string `json:"fit,omitempty" validate:"omitempty,fitmode"`
	Background string `json:"background,omitempty"`
	DPR        int    `json:"dpr,omitempty" validate:"gte=0"`
	Format     string `json:"format,omitempty" validate:"omitempty,imageformat"`
	Quality    int    `json:"quality,omitempty" validate:"gte=0,lte=100"`
}
