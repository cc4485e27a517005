package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedFeed wraps a primary Feed with a Redis read-through cache keyed per
// ticker. Redis errors degrade to cache misses. When the primary fails, any
// cache hits are still returned alongside an ErrPartialQuotes error.
type CachedFeed struct {
	primary Feed
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedFeed creates a cached wrapper around a primary feed.
func NewCachedFeed(primary Feed, rdb redis.Cmdable, ttl time.Duration) *CachedFeed {
	return &CachedFeed{primary: primary, rdb: rdb, ttl: ttl}
}

func (f *CachedFeed) Quotes(ctx context.Context, tickers []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(tickers))
	var misses []string
	for _, t := range tickers {
		data, err := f.rdb.Get(ctx, quoteKey(t)).Bytes()
		if err == nil {
			var q Quote
			if json.Unmarshal(data, &q) == nil {
				out[t] = q
				continue
			}
		}
		misses = append(misses, t)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := f.primary.Quotes(ctx, misses)
	if err != nil {
		if len(out) == 0 {
			return nil, err
		}
		return out, fmt.Errorf("%w: %d cached, %d unpriced: %w", ErrPartialQuotes, len(out), len(misses), err)
	}
	for _, t := range misses {
		q, ok := fetched[t]
		if !ok {
			continue
		}
		out[t] = q
		if data, err := json.Marshal(q); err == nil {
			f.rdb.Set(ctx, quoteKey(t), string(data), f.ttl)
		}
	}
	return out, nil
}

func quoteKey(ticker string) string { return fmt.Sprintf("quote:%s", ticker) }
