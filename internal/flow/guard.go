package flow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Guard records one-shot events. Claim returns true only for the first
// call with a given key within the guard's retention.
type Guard interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// onceKey derives a guard key without keeping the secret value itself.
func onceKey(kind, value string) string {
	sum := sha256.Sum256([]byte(value))
	return kind + ":" + hex.EncodeToString(sum[:])
}

// MemoryGuard is a process-local Guard. It is enough for a single
// instance; deployments with several instances use RedisGuard.
type MemoryGuard struct {
	mu        sync.Mutex
	claimed   map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

func NewMemoryGuard(retention time.Duration) *MemoryGuard {
	return &MemoryGuard{
		claimed:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// SetNow overrides the time function (for testing).
func (g *MemoryGuard) SetNow(fn func() time.Time) {
	g.mu.Lock()
	g.now = fn
	g.mu.Unlock()
}

func (g *MemoryGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, expires := range g.claimed {
		if !now.Before(expires) {
			delete(g.claimed, k)
		}
	}

	if _, ok := g.claimed[key]; ok {
		return false, nil
	}
	g.claimed[key] = now.Add(g.retention)
	return true, nil
}

// OnceMarker is the storage RedisGuard needs; *cache.Cache satisfies it.
type OnceMarker interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisGuard shares claims between instances through SETNX.
type RedisGuard struct {
	marker    OnceMarker
	retention time.Duration
}

func NewRedisGuard(marker OnceMarker, retention time.Duration) *RedisGuard {
	return &RedisGuard{
		marker:    marker,
		retention: retention,
	}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.marker.MarkOnce(ctx, key, g.retention)
}
