package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dunamismax/pixelfit/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDecode = errors.New("decode source image")
	ErrEncode = errors.New("encode output image")
)

const (
	defaultMaxDimension = 8192
	defaultMaxDPR       = 4
	defaultQuality      = 85
	defaultFormat       = "jpeg"

	// 10000x10000
	defaultMaxSourcePixels = 100_000_000
)

type Config struct {
	// DefaultBackground fills padded areas when a request has no background.
	DefaultBackground domain.RGB
	MaxDimension      int
	MaxDPR            int
	// MaxSourcePixels bounds the decoded source raster.
	MaxSourcePixels   int64
	DefaultQuality    int
	DefaultFormat     string
}

// Request is one transform call. Zero Width/Height keep the source's native
// size on that axis; zero DPR means 1.
type Request struct {
	Source     []byte
	Width      int
	Height     int
	Fit        string
	Background *domain.RGB
	DPR        int
	Format     string
	Quality    int
}

type Result struct {
	Data         []byte
	Format       string
	SourceFormat string
	Width        int
	Height       int
	Fit          domain.FitMode
}

type Transformer struct {
	codec    Codec
	pipeline *Pipeline
	cfg      Config
	tracer   trace.Tracer
}

func New(cfg Config) *Transformer {
	return NewWithCodec(newCodec(), cfg)
}

func NewWithCodec(codec Codec, cfg Config) *Transformer {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = defaultMaxDimension
	}
	if cfg.MaxDPR <= 0 {
		cfg.MaxDPR = defaultMaxDPR
	}
	if cfg.MaxSourcePixels <= 0 {
		cfg.MaxSourcePixels = defaultMaxSourcePixels
	}
	if cfg.DefaultQuality <= 0 || cfg.DefaultQuality > 100 {
		cfg.DefaultQuality = defaultQuality
	}
	if format, ok := normalizeOutputFormat(cfg.DefaultFormat); ok && codec.Supports(format) {
		cfg.DefaultFormat = format
	} else {
		cfg.DefaultFormat = defaultFormat
	}

	return &Transformer{
		codec:    codec,
		pipeline: NewPipeline(),
		cfg:      cfg,
		tracer:   otel.Tracer("pixelfit/transform"),
	}
}

func (t *Transformer) Transform(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	_, span := t.tracer.Start(ctx, "transform.render")
	defer span.End()

	result, err := t.render(req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		return Result{}, err
	}
	return result, nil
}

func (t *Transformer) render(req Request, span trace.Span) (Result, error) {
	format, quality, err := t.encoding(req)
	if err != nil {
		return Result{}, err
	}

	if err := t.checkSourcePixels(req.Source); err != nil {
		return Result{}, err
	}

	src, srcFormat, err := t.codec.Decode(req.Source)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	opts, err := t.Options(req, src.Bounds())
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("transform.fit", opts.Resize.Mode.String()),
		attribute.Int("transform.width", opts.Resize.Width),
		attribute.Int("transform.height", opts.Resize.Height),
		attribute.String("transform.source_format", srcFormat),
	)

	p := NewProcessable(src, opts)
	t.pipeline.Execute(p)

	data, err := t.codec.Encode(p.Output, format, quality)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	bounds := p.Output.Bounds()
	return Result{
		Data:         data,
		Format:       format,
		SourceFormat: srcFormat,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Fit:          opts.Resize.Mode,
	}, nil
}

// Options resolves a request against the decoded source bounds.
func (t *Transformer) Options(req Request, src image.Rectangle) (ProcessOptions, error) {
	mode, err := domain.ParseFitMode(req.Fit)
	if err != nil {
		return ProcessOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	dpr := req.DPR
	if dpr == 0 {
		dpr = 1
	}
	if dpr < 0 || dpr > t.cfg.MaxDPR {
		return ProcessOptions{}, fmt.Errorf("%w: dpr must be between 1 and %d", ErrInvalidOptions, t.cfg.MaxDPR)
	}

	width, err := t.dimension("width", req.Width, src.Dx(), dpr)
	if err != nil {
		return ProcessOptions{}, err
	}
	height, err := t.dimension("height", req.Height, src.Dy(), dpr)
	if err != nil {
		return ProcessOptions{}, err
	}

	resize, err := NewResizeOptions(width, height, mode, dpr)
	if err != nil {
		return ProcessOptions{}, err
	}

	return ProcessOptions{
		Resize:     resize,
		Background: req.Background,
		Fallback:   t.cfg.DefaultBackground,
	}, nil
}

// checkSourcePixels reads only the container header. Formats the standard
// decoders do not recognise are left to the codec.
func (t *Transformer) checkSourcePixels(data []byte) error {
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > t.cfg.MaxSourcePixels {
		return fmt.Errorf("%w: source %dx%d exceeds %d pixels", ErrDecode, header.Width, header.Height, t.cfg.MaxSourcePixels)
	}
	return nil
}

// dimension caps only explicitly requested sizes; a native axis passes through.
func (t *Transformer) dimension(name string, requested, native, dpr int) (int, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidOptions, name)
	}
	if requested == 0 {
		return native, nil
	}

	resolved := requested * dpr
	if resolved > t.cfg.MaxDimension {
		return 0, fmt.Errorf("%w: %s %d exceeds limit %d", ErrInvalidOptions, name, resolved, t.cfg.MaxDimension)
	}
	return resolved, nil
}

func (t *Transformer) encoding(req Request) (string, int, error) {
	format := t.cfg.DefaultFormat
	if strings.TrimSpace(req.Format) != "" {
		normalized, ok := normalizeOutputFormat(req.Format)
		if !ok || !t.codec.Supports(normalized) {
			return "", 0, fmt.Errorf("%w: %w: %q", ErrInvalidOptions, ErrUnsupportedFormat, req.Format)
		}
		format = normalized
	}

	quality := req.Quality
	switch {
	case quality == 0:
		quality = t.cfg.DefaultQuality
	case quality < 0 || quality > 100:
		return "", 0, fmt.Errorf("%w: quality must be between 1 and 100", ErrInvalidOptions)
	}
	return format, quality, nil
}
