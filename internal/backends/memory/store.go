package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Store is a goroutine-safe in-memory KVStore. It backs tests and the
// degraded mode used when durable storage is unavailable: the client
// keeps working, state just does not survive a restart.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, types.Err(types.ErrNotFound, nil, "key %q", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.data[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if matches(pattern, k) {
			delete(s.data, k)
		}
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if matches(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) Close() error { return nil }

// matches supports a single trailing "*" wildcard, the only pattern
// shape the key namespacing needs.
func matches(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
