// Package store implements the context store: the durable mapping from a
// caller identity to its most recent brief.
package store

import (
	"context"
	"log"

	"github.com/ramin-sadeghi/briefer/config"
	"github.com/ramin-sadeghi/briefer/internal/brief"
)

// ContextStore holds at most one live record per identity, last-write-wins.
// Get returns ok=false when no record exists; absence is not an error.
type ContextStore interface {
	Get(ctx context.Context, identity string) (brief.ContextRecord, bool, error)
	Put(ctx context.Context, identity string, b brief.FinalBrief) error
	Close() error
}

// New selects a store implementation from configuration: Postgres when
// configured, Redis as fallback, in-memory for development.
func New(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (ContextStore, error) {
	if cfg.Postgres.Configured() {
		ps, err := NewPostgresStore(ctx, cfg.Postgres.DSN())
		if err == nil {
			return ps, nil
		}
		logger.Printf("warn: postgres context store init failed: %v, falling back to redis", err)
	}
	if cfg.Redis.Host != "" {
		return NewRedisStore(cfg.Redis), nil
	}
	logger.Printf("warn: no durable context store configured, using in-memory store")
	return NewMemoryStore(), nil
}
