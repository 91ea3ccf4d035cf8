// Package kv layers JSON (de)serialization and fallback semantics over
// a raw ports.KVStore. All persisted client state goes through here.
package kv

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/ports"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

type Store struct {
	backend ports.KVStore
}

func New(backend ports.KVStore) *Store {
	return &Store{backend: backend}
}

// GetJSON decodes the stored value for key into out.
// Returns types.ErrNotFound if the key is missing.
func (s *Store) GetJSON(ctx context.Context, key string, out any) error {
	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.Err(types.ErrStoreAccess, err, "corrupt JSON for key %q", key)
	}
	return nil
}

// GetJSONOr decodes the stored value into out, assigning fallback when
// the key is missing, unreadable, or holds corrupted JSON. Corruption
// is logged once and the bad value is dropped so the next write heals
// the key.
func (s *Store) GetJSONOr(ctx context.Context, key string, out any, fallback func()) {
	err := s.GetJSON(ctx, key, out)
	if err == nil {
		return
	}
	if !errors.Is(err, types.ErrNotFound) {
		log.WithError(err).Warnf("dropping unreadable value for %q", key)
		_ = s.backend.Delete(ctx, key)
	}
	fallback()
}

func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "marshal value for key %q", key)
	}
	return s.backend.Set(ctx, key, raw)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Invalidate removes every key matching the pattern ("auth:*").
func (s *Store) Invalidate(ctx context.Context, pattern string) error {
	return s.backend.DeleteMatching(ctx, pattern)
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.backend.Keys(ctx, pattern)
}

func (s *Store) Close() error {
	return s.backend.Close()
}
