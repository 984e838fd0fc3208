package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelfit/internal/domain"
)

// URLFetcher downloads a remote source. *source.Fetcher satisfies it.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type HTTPFetcher struct {
	Client URLFetcher
}

func (f HTTPFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, domain.SourceTypeHTTPURL) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Client.Fetch(ctx, req.ObjectKey)
}

// SourceRouter dispatches to a fetcher by source type.
type SourceRouter map[string]Fetcher

func (r SourceRouter) Fetch(ctx context.Context, req Request) ([]byte, error) {
	f, ok := r[strings.ToLower(strings.TrimSpace(req.SourceType))]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Fetch(ctx, req)
}
