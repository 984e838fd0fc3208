package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.NRGBA{A: 255}
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// stripedImage paints equal-width vertical stripes left to right.
func stripedImage(w, h int, stripes ...color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	stripeW := w / len(stripes)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := min(x/stripeW, len(stripes)-1)
			img.SetNRGBA(x, y, stripes[idx])
		}
	}
	return img
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeNRGBA(t testing.TB, data []byte) *image.NRGBA {
	t.Helper()

	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	out := image.NewNRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// regionIs reports whether every pixel in [x0,x1) x [y0,y1) equals want.
func regionIs(img *image.NRGBA, x0, y0, x1, y1 int, want color.NRGBA) bool {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if img.NRGBAAt(x, y) != want {
				return false
			}
		}
	}
	return true
}

// dominant reports whether c is visibly the given primary, tolerating resampling ringing.
func dominant(c, want color.NRGBA) bool {
	near := func(a, b uint8) bool {
		d := int(a) - int(b)
		return d > -40 && d < 40
	}
	return near(c.R, want.R) && near(c.G, want.G) && near(c.B, want.B)
}
