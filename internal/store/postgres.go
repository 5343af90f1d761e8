package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ramin-sadeghi/briefer/internal/brief"
)

// PostgresStore persists context records in a single upsert-only table.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore opens a connection and verifies it.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, identity string) (brief.ContextRecord, bool, error) {
	var (
		rec    brief.ContextRecord
		briefB []byte
	)
	rec.Identity = identity
	err := s.DB.QueryRowContext(ctx,
		`SELECT last_brief, updated_at FROM context_records WHERE identity = $1`,
		identity,
	).Scan(&briefB, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return brief.ContextRecord{}, false, nil
	}
	if err != nil {
		return brief.ContextRecord{}, false, &brief.ContextStoreError{Op: "get", Err: err}
	}
	if err := json.Unmarshal(briefB, &rec.LastBrief); err != nil {
		return brief.ContextRecord{}, false, &brief.ContextStoreError{Op: "get", Err: fmt.Errorf("decode brief: %w", err)}
	}
	return rec, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, identity string, b brief.FinalBrief) error {
	briefB, err := json.Marshal(b)
	if err != nil {
		return &brief.ContextStoreError{Op: "put", Err: fmt.Errorf("encode brief: %w", err)}
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO context_records (identity, last_brief, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (identity) DO UPDATE SET
  last_brief = EXCLUDED.last_brief,
  updated_at = NOW();
`, identity, briefB)
	if err != nil {
		return &brief.ContextStoreError{Op: "put", Err: err}
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }
