package state

import (
	"context"
	"sync"
)

// MemoryStore is the process-lifetime ledger used for single runs and tests.
// No eviction: entries live as long as the process. A plain mutex suffices;
// this backend only needs correctness under cooperative concurrency.
type MemoryStore struct {
	mu        sync.Mutex
	cursor    string
	processed map[Kind]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processed: map[Kind]map[string]struct{}{
			KindHistory: {},
			KindMessage: {},
		},
	}
}

// Cursor implements Store.
func (s *MemoryStore) Cursor(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// SetCursor implements Store.
func (s *MemoryStore) SetCursor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = id
	return nil
}

// IsProcessed implements Store.
func (s *MemoryStore) IsProcessed(ctx context.Context, kind Kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[kind][id]
	return ok, nil
}

// MarkProcessed implements Store. Add-if-absent under the mutex, so two
// concurrent first-time calls yield exactly one first=true.
func (s *MemoryStore) MarkProcessed(ctx context.Context, kind Kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.processed[kind]
	if !ok {
		set = map[string]struct{}{}
		s.processed[kind] = set
	}
	if _, exists := set[id]; exists {
		return false, nil
	}
	set[id] = struct{}{}
	return true, nil
}

// Close implements Store. No resources to release.
func (s *MemoryStore) Close() error {
	return nil
}
