package file

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

const fileExt = ".kv"

var enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var dec, _ = zstd.NewReader(nil)

// Store is the default KVStore: one zstd-compressed file per key under
// a data directory. Key names are base64url-encoded so namespaced keys
// ("auth:token") stay filesystem-safe. Writes go through a temp file +
// rename so a crash never leaves a half-written value behind.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "create data dir %q", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.Err(types.ErrNotFound, nil, "key %q", key)
		}
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	out, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "corrupt value for key %q", key)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	compressed := enc.EncodeAll(value, make([]byte, 0, len(value)))
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o600); err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

func (s *Store) DeleteMatching(ctx context.Context, pattern string) error {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	var keys []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExt)
		if !ok || e.IsDir() {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(name)
		if err != nil {
			continue // foreign file in the data dir
		}
		key := string(decoded)
		if matches(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

func matches(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
