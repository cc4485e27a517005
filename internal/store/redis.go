package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pennybuzz/engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and invalidate the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) SaveCandidates(ctx context.Context, name string, rows []model.Candidate) error {
	if err := s.primary.SaveCandidates(ctx, name, rows); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, candidatesKey(name))
	return nil
}

func (s *CachedStore) LoadCandidates(ctx context.Context, name string) ([]model.Candidate, error) {
	data, err := s.rdb.Get(ctx, candidatesKey(name)).Bytes()
	if err == nil {
		var rows []model.Candidate
		if json.Unmarshal(data, &rows) == nil {
			return rows, nil
		}
	}

	// Cache miss.
	rows, err := s.primary.LoadCandidates(ctx, name)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rows); err == nil {
		s.rdb.Set(ctx, candidatesKey(name), string(data), s.ttl)
	}
	return rows, nil
}

func candidatesKey(name string) string { return fmt.Sprintf("candidates:%s", name) }
