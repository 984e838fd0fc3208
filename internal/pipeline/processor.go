package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/transform"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Variants   []domain.Variant
}

type Output struct {
	VariantID string
	Fit       string
	Format    string
	Path      string
	Bytes     int
	Width     int
	Height    int
	Success   bool
}

type Result struct {
	SourceBytes int
	Outputs     []Output
}

// Renderer turns one source image into one rendition.
type Renderer interface {
	Transform(ctx context.Context, req transform.Request) (transform.Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, variant domain.Variant, rendered transform.Result) (Output, error)
}

type Processor struct {
	fetcher  Fetcher
	renderer Renderer
	emitter  Emitter
}

func NewProcessor(fetcher Fetcher, renderer Renderer, emitter Emitter) (*Processor, error) {
	if fetcher == nil || renderer == nil || emitter == nil {
		return nil, errors.New("fetcher, renderer and emitter are required")
	}
	return &Processor{fetcher: fetcher, renderer: renderer, emitter: emitter}, nil
}

func NewLocalProcessor(outputDir string, renderer Renderer) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{}, renderer, LocalFileEmitter{OutputDir: outputDir})
}

// Process fetches the source once and renders every variant from it.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Variants) == 0 {
		return Result{}, errors.New("at least one variant is required")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	out := Result{
		SourceBytes: len(sourceBytes),
		Outputs:     make([]Output, 0, len(req.Variants)),
	}
	for _, variant := range req.Variants {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		treq, err := VariantRequest(sourceBytes, variant)
		if err != nil {
			return Result{}, fmt.Errorf("variant %s: %w", variant.ID, err)
		}

		rendered, err := p.renderer.Transform(ctx, treq)
		if err != nil {
			return Result{}, fmt.Errorf("transform stage variant=%s fit=%s: %w", variant.ID, variant.Fit, err)
		}

		written, err := p.emitter.Emit(ctx, req, variant, rendered)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage variant=%s: %w", variant.ID, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

// VariantRequest maps a stored variant onto a transform request over source.
func VariantRequest(source []byte, v domain.Variant) (transform.Request, error) {
	req := transform.Request{
		Source:  source,
		Width:   v.Width,
		Height:  v.Height,
		Fit:     v.Fit,
		DPR:     v.DPR,
		Format:  v.Format,
		Quality: v.Quality,
	}
	if bg := strings.TrimSpace(v.Background); bg != "" {
		rgb, err := domain.ParseRGB(bg)
		if err != nil {
			return transform.Request{}, fmt.Errorf("%w: %w", transform.ErrInvalidOptions, err)
		}
		req.Background = &rgb
	}
	return req, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, variant domain.Variant, rendered transform.Result) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(variant.ID) == "" {
		return Output{}, errors.New("variant id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, sanitizePathToken(variant.ID)+"."+rendered.Format)
	if err := os.WriteFile(fullPath, rendered.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return outputFor(variant, rendered, fullPath), nil
}

func outputFor(variant domain.Variant, rendered transform.Result, path string) Output {
	return Output{
		VariantID: variant.ID,
		Fit:       rendered.Fit.String(),
		Format:    rendered.Format,
		Path:      path,
		Bytes:     len(rendered.Data),
		Width:     rendered.Width,
		Height:    rendered.Height,
		Success:   true,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
