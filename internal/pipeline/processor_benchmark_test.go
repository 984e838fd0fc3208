package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/transform"
)

func benchmarkProcessor(b *testing.B, variants []domain.Variant) {
	source := buildTestPNG(b, 1920, 1080)
	processor, err := NewProcessor(staticFetcher{data: source}, transform.New(transform.Config{}), discardEmitter{})
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}

	req := Request{JobID: "bench", Variants: variants}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.JobID = fmt.Sprintf("bench-%d", i)
		if _, err := processor.Process(context.Background(), req); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

func BenchmarkProcessorScaleDown(b *testing.B) {
	benchmarkProcessor(b, []domain.Variant{
		{ID: "w640", Width: 640, Fit: "scale-down", Format: "jpeg", Quality: 82},
	})
}

func BenchmarkProcessorResponsiveSet(b *testing.B) {
	benchmarkProcessor(b, []domain.Variant{
		{ID: "thumb", Width: 160, Height: 160, Fit: "cover"},
		{ID: "card", Width: 480, Height: 320, Fit: "pad", Background: "ffffff"},
		{ID: "retina", Width: 640, Fit: "contain", DPR: 2},
	})
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, _ Request, variant domain.Variant, rendered transform.Result) (Output, error) {
	return outputFor(variant, rendered, ""), nil
}
