package store

import (
	"context"
	"fmt"

	"github.com/dunamismax/pixelfit/internal/config"
)

// Store persists jobs and their usage accounting.
type Store interface {
	JobStore
	UsageStore
}

// Open returns the store selected by cfg.Driver and a matching close func.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryJobStore(), func() error { return nil }, nil
	case "postgres":
		pg, err := NewPostgresJobStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported job store driver: %s", cfg.Driver)
	}
}
