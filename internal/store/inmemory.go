package store

import (
	"context"
	"sync"
	"time"

	"github.com/ramin-sadeghi/briefer/internal/brief"
)

// MemoryStore is a non-durable store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]brief.ContextRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]brief.ContextRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (brief.ContextRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	return rec, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, identity string, b brief.FinalBrief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identity] = brief.ContextRecord{Identity: identity, LastBrief: b, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
