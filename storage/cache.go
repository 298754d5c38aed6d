package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counts holds the aggregate numbers shown on the landing page.
type Counts struct {
	Tasks    int `json:"tasks"`
	Comments int `json:"comments"`
}

type countsBackend interface {
	CountTasks(ctx context.Context) (int, error)
	CountComments(ctx context.Context) (int, error)
}

// CountsCache serves landing-page aggregates from Redis, recomputing them
// from the table store only after the TTL expires. Counts are intentionally
// stale between revalidations.
type CountsCache struct {
	base  countsBackend
	redis *redis.Client
	ttl   time.Duration
}

const countsCacheKey = "counts"

// NewCountsCache creates a caching counts provider with the given TTL.
func NewCountsCache(base countsBackend, client *redis.Client, ttl time.Duration) *CountsCache {
	if base == nil {
		panic("storage.NewCountsCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CountsCache{base: base, redis: client, ttl: ttl}
}

// Counts returns the cached aggregates, computing and storing them on a miss.
func (c *CountsCache) Counts(ctx context.Context) (Counts, error) {
	if counts, ok := c.loadFromCache(ctx); ok {
		return counts, nil
	}

	tasks, err := c.base.CountTasks(ctx)
	if err != nil {
		return Counts{}, err
	}
	comments, err := c.base.CountComments(ctx)
	if err != nil {
		return Counts{}, err
	}

	counts := Counts{Tasks: tasks, Comments: comments}
	c.store(ctx, counts)
	return counts, nil
}

func (c *CountsCache) loadFromCache(ctx context.Context) (Counts, bool) {
	if c.redis == nil {
		return Counts{}, false
	}
	data, err := c.redis.Get(ctx, countsCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, countsCacheKey).Err()
		}
		return Counts{}, false
	}
	var counts Counts
	if err := json.Unmarshal(data, &counts); err != nil {
		_ = c.redis.Del(ctx, countsCacheKey).Err()
		return Counts{}, false
	}
	return counts, true
}

func (c *CountsCache) store(ctx context.Context, counts Counts) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, countsCacheKey, data, c.ttl).Err()
}
