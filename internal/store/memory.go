package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/pennybuzz/engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]model.Candidate
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]model.Candidate)}
}

func (s *MemoryStore) SaveCandidates(_ context.Context, name string, rows []model.Candidate) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := make([]model.Candidate, len(rows))
	copy(cp, rows)
	s.tables[name] = cp
	return nil
}

func (s *MemoryStore) LoadCandidates(_ context.Context, name string) ([]model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cp := make([]model.Candidate, len(rows))
	copy(cp, rows)
	return cp, nil
}
