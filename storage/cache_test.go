package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeCounter struct {
	tasks    int
	comments int
	calls    int
	err      error
}

func (f *fakeCounter) CountTasks(ctx context.Context) (int, error) {
	f.calls++
	return f.tasks, f.err
}

func (f *fakeCounter) CountComments(ctx context.Context) (int, error) {
	return f.comments, f.err
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		rc.Close()
		m.Close()
	})
	return m, rc
}

func TestCountsCacheMissComputesAndStores(t *testing.T) {
	m, rc := setupRedis(t)
	base := &fakeCounter{tasks: 12, comments: 90}
	cache := NewCountsCache(base, rc, 24*time.Hour)

	counts, err := cache.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Tasks != 12 || counts.Comments != 90 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if base.calls != 1 {
		t.Fatalf("expected one backend call, got %d", base.calls)
	}

	data, err := m.Get(countsCacheKey)
	if err != nil {
		t.Fatalf("expected cached value: %v", err)
	}
	var cached Counts
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		t.Fatalf("invalid cached json: %v", err)
	}
	if cached != counts {
		t.Fatalf("cached %+v, want %+v", cached, counts)
	}
	if ttl := m.TTL(countsCacheKey); ttl != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestCountsCacheServesStaleUntilExpiry(t *testing.T) {
	m, rc := setupRedis(t)
	base := &fakeCounter{tasks: 1, comments: 1}
	cache := NewCountsCache(base, rc, 24*time.Hour)

	if _, err := cache.Counts(context.Background()); err != nil {
		t.Fatalf("counts: %v", err)
	}

	// Backend numbers change but the cache still serves the old snapshot.
	base.tasks = 50
	counts, err := cache.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Tasks != 1 {
		t.Fatalf("expected stale count 1, got %d", counts.Tasks)
	}
	if base.calls != 1 {
		t.Fatalf("expected no extra backend call, got %d", base.calls)
	}

	m.FastForward(24*time.Hour + time.Second)
	counts, err = cache.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Tasks != 50 {
		t.Fatalf("expected recomputed count 50, got %d", counts.Tasks)
	}
}

func TestCountsCacheCorruptEntryFallsBack(t *testing.T) {
	m, rc := setupRedis(t)
	if err := m.Set(countsCacheKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	base := &fakeCounter{tasks: 3, comments: 4}
	cache := NewCountsCache(base, rc, time.Hour)

	counts, err := cache.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Tasks != 3 || counts.Comments != 4 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCountsCacheRedisDownFallsBack(t *testing.T) {
	m, rc := setupRedis(t)
	m.Close()
	base := &fakeCounter{tasks: 7, comments: 8}
	cache := NewCountsCache(base, rc, time.Hour)

	counts, err := cache.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Tasks != 7 || counts.Comments != 8 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCountsCacheBackendError(t *testing.T) {
	_, rc := setupRedis(t)
	base := &fakeCounter{err: errors.New("table down")}
	cache := NewCountsCache(base, rc, time.Hour)

	if _, err := cache.Counts(context.Background()); err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestCountsCacheNilRedis(t *testing.T) {
	base := &fakeCounter{tasks: 2, comments: 5}
	cache := NewCountsCache(base, nil, time.Hour)

	counts, err := cache.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Tasks != 2 || counts.Comments != 5 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
