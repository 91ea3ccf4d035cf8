package ports

import "context"

// KVStore represents durable byte-level key/value storage for client
// state (tokens, preference cache, generic cache entries).
// Implementations MUST return types.ErrNotFound (possibly wrapped) for
// missing keys. Keys are namespaced strings ("auth:token",
// "user:preferences"); patterns use a single trailing "*" wildcard.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every key matching the pattern
	// (e.g. "auth:*"). Deleting zero keys is not an error.
	DeleteMatching(ctx context.Context, pattern string) error

	// Keys lists the keys matching the pattern, in no particular order.
	Keys(ctx context.Context, pattern string) ([]string, error)

	Close() error
}
