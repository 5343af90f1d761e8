package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramin-sadeghi/briefer/config"
	"github.com/ramin-sadeghi/briefer/internal/brief"
)

// RedisStore keeps the single live record per identity under one key, so
// SET gives last-write-wins without partial interleaving.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: rdb}
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(identity string) string { return fmt.Sprintf("context:%s", identity) }

func (s *RedisStore) Get(ctx context.Context, identity string) (brief.ContextRecord, bool, error) {
	val, err := s.client.Get(ctx, key(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return brief.ContextRecord{}, false, nil
	}
	if err != nil {
		return brief.ContextRecord{}, false, &brief.ContextStoreError{Op: "get", Err: err}
	}
	var rec brief.ContextRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return brief.ContextRecord{}, false, &brief.ContextStoreError{Op: "get", Err: fmt.Errorf("decode record: %w", err)}
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, identity string, b brief.FinalBrief) error {
	rec := brief.ContextRecord{Identity: identity, LastBrief: b, UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return &brief.ContextStoreError{Op: "put", Err: fmt.Errorf("encode record: %w", err)}
	}
	if err := s.client.Set(ctx, key(identity), raw, 0).Err(); err != nil {
		return &brief.ContextStoreError{Op: "put", Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
