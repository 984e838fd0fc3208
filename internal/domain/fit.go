package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FitMode reconciles a source image's aspect ratio with a requested target box.
type FitMode string

const (
	FitContain   FitMode = "contain"
	FitPad       FitMode = "pad"
	FitScaleDown FitMode = "scale-down"
	FitFill      FitMode = "fill"
	FitCover     FitMode = "cover"
)

var ErrUnknownFit = errors.New("unknown fit mode")

// ParseFitMode maps a request token to a FitMode. An empty token selects FitContain.
func ParseFitMode(token string) (FitMode, error) {
	switch mode := FitMode(strings.ToLower(strings.TrimSpace(token))); mode {
	case "":
		return FitContain, nil
	case FitContain, FitPad, FitScaleDown, FitFill, FitCover:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFit, token)
	}
}

func (m FitMode) String() string {
	return string(m)
}

// Pads reports whether the mode fills uncovered canvas area with a background colour.
func (m FitMode) Pads() bool {
	return m == FitPad
}
