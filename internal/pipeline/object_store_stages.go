package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelfit/internal/domain"
	"github.com/dunamismax/pixelfit/internal/storage"
	"github.com/dunamismax/pixelfit/internal/transform"
)

type ObjectStoreFetcher struct {
	Storage  *storage.Client
	MaxBytes int64
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if !strings.EqualFold(req.SourceType, domain.SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey, f.MaxBytes)
}

type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, variant domain.Variant, rendered transform.Result) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}
	if strings.TrimSpace(variant.ID) == "" {
		return Output{}, errors.New("variant id is required")
	}

	objectKey := storage.RenditionKey(
		e.OutputPrefix,
		sanitizePathToken(req.JobID),
		sanitizePathToken(variant.ID),
		rendered.Format,
	)
	if err := e.Storage.WriteObject(ctx, objectKey, rendered.Data, transform.ContentType(rendered.Format)); err != nil {
		return Output{}, err
	}

	return outputFor(variant, rendered, objectKey), nil
}
