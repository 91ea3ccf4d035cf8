package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

const keyNameTemplate = "_tickprefs_kv_%s"

// Store implements ports.KVStore on Redis. Used when several terminals
// of the same operator share state (shop-floor kiosks pointing at one
// Redis).
type Store struct {
	cli *redis.Client
}

func New(cli *redis.Client) *Store {
	return &Store{cli: cli}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out := s.cli.Get(ctx, storageKey(key))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return nil, types.Err(types.ErrNotFound, nil, "key %q", key)
		}
		return nil, types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	return []byte(out.Val()), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	out := s.cli.Set(ctx, storageKey(key), value, 0)
	if out.Err() != nil {
		return types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	out := s.cli.Del(ctx, storageKey(key))
	if out.Err() != nil {
		return types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, pattern string) error {
	keys, err := s.rawKeys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	out := s.cli.Del(ctx, keys...)
	if out.Err() != nil {
		return types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	raw, err := s.rawKeys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	prefixLen := len(fmt.Sprintf(keyNameTemplate, ""))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if len(k) > prefixLen {
			keys = append(keys, k[prefixLen:])
		}
	}
	return keys, nil
}

func (s *Store) Close() error {
	return s.cli.Close()
}

func (s *Store) rawKeys(ctx context.Context, pattern string) ([]string, error) {
	out := s.cli.Keys(ctx, storageKey(pattern))
	if out.Err() != nil {
		return nil, types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	return out.Val(), nil
}

func storageKey(key string) string {
	return fmt.Sprintf(keyNameTemplate, key)
}
