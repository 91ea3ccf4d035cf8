package cache

import (
	"strings"
	"sync"
	"time"
)

// TTL is a minimal in-process TTL cache to trim backend reads on hot
// paths. Caller chooses a sensible TTL (e.g. 30s to 60s for session
// config). Lazy expiration on Get.
type TTL[K ~string, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]
}

type entry[V any] struct {
	val V
	exp time.Time
}

func NewTTL[K ~string, V any]() *TTL[K, V] {
	return &TTL[K, V]{data: make(map[K]entry[V])}
}

// Get returns the value and true if found and not expired; otherwise
// zero value and false.
func (t *TTL[K, V]) Get(k K) (V, bool) {
	t.mu.RLock()
	e, ok := t.data[k]
	t.mu.RUnlock()
	if !ok || timeNow().After(e.exp) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (t *TTL[K, V]) Set(k K, v V, ttl time.Duration) {
	t.mu.Lock()
	t.data[k] = entry[V]{val: v, exp: timeNow().Add(ttl)}
	t.mu.Unlock()
}

func (t *TTL[K, V]) Delete(k K) {
	t.mu.Lock()
	delete(t.data, k)
	t.mu.Unlock()
}

// DeleteMatching removes every entry whose key matches the pattern
// (single trailing "*" wildcard, e.g. "users:*").
func (t *TTL[K, V]) DeleteMatching(pattern string) {
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	t.mu.Lock()
	for k := range t.data {
		key := string(k)
		if (wildcard && strings.HasPrefix(key, prefix)) || (!wildcard && key == pattern) {
			delete(t.data, k)
		}
	}
	t.mu.Unlock()
}

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}
