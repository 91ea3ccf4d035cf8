package cache

import (
	"context"
	"time"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Registry persists generic cache entries (session config, lookup
// tables) through the KV store under the "cache:" namespace, each with
// its own TTL, with a read-through in-process layer on top. Expired
// entries are dropped lazily on read.
type Registry struct {
	store *kv.Store
	hot   *TTL[string, types.CacheEntry]
}

func NewRegistry(store *kv.Store) *Registry {
	return &Registry{store: store, hot: NewTTL[string, types.CacheEntry]()}
}

// Get returns the cached value, or false when missing or expired.
func (r *Registry) Get(ctx context.Context, key string) (any, bool) {
	if e, ok := r.hot.Get(key); ok {
		return e.Value, true
	}
	var e types.CacheEntry
	if err := r.store.GetJSON(ctx, storageKey(key), &e); err != nil {
		return nil, false
	}
	if e.Expired(timeNow()) {
		_ = r.store.Delete(ctx, storageKey(key))
		return nil, false
	}
	r.hot.Set(key, e, time.Until(e.ExpiresAt))
	return e.Value, true
}

func (r *Registry) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	e := types.CacheEntry{Value: value, ExpiresAt: timeNow().Add(ttl)}
	r.hot.Set(key, e, ttl)
	return r.store.SetJSON(ctx, storageKey(key), e)
}

// Invalidate removes every entry matching the pattern ("users:*"),
// from both the hot layer and storage.
func (r *Registry) Invalidate(ctx context.Context, pattern string) error {
	r.hot.DeleteMatching(pattern)
	return r.store.Invalidate(ctx, storageKey(pattern))
}

func storageKey(key string) string {
	return types.CacheKeyPrefix + key
}
