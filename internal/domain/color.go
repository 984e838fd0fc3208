package domain

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var ErrInvalidColor = errors.New("invalid colour")

// RGB is an opaque background colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

var Black = RGB{}

// ParseRGB accepts "rrggbb", "#rrggbb", the "rgb" shorthand and "r,g,b".
func ParseRGB(in string) (RGB, error) {
	raw := strings.TrimSpace(in)
	if raw == "" {
		return RGB{}, fmt.Errorf("%w: empty value", ErrInvalidColor)
	}

	if strings.Contains(raw, ",") {
		return parseTriplet(raw)
	}

	hex := strings.TrimPrefix(raw, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, in)
	}

	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, in)
	}
	return RGB{
		R: uint8(value >> 16),
		G: uint8(value >> 8),
		B: uint8(value),
	}, nil
}

func parseTriplet(raw string) (RGB, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}

	var channels [3]uint8
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, raw)
		}
		channels[i] = uint8(v)
	}
	return RGB{R: channels[0], G: channels[1], B: channels[2]}, nil
}

func (c RGB) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// NRGBA returns the colour as a fully opaque image/color value.
func (c RGB) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}
