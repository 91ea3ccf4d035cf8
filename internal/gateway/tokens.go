package gateway

import (
	"context"
	"sync"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// TokenStore holds the current access/refresh pair, mirrored to the
// KV store under types.KeyTokenPair. Only the auth broker mutates it
// after startup.
type TokenStore struct {
	mu    sync.RWMutex
	store *kv.Store
	pair  types.TokenPair
}

func NewTokenStore(store *kv.Store) *TokenStore {
	return &TokenStore{store: store}
}

// Load hydrates the pair from storage. A missing or unreadable value
// leaves the pair empty (not logged in).
func (t *TokenStore) Load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var pair types.TokenPair
	t.store.GetJSONOr(ctx, types.KeyTokenPair, &pair, func() {
		pair = types.TokenPair{}
	})
	t.pair = pair
}

func (t *TokenStore) Access() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pair.AccessToken
}

func (t *TokenStore) Refresh() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pair.RefreshToken
}

// HasRefresh reports whether auto-refresh is possible at all.
func (t *TokenStore) HasRefresh() bool {
	return t.Refresh() != ""
}

// Save stores a new pair. An empty RefreshToken in the update keeps the
// previous one (servers that do not rotate refresh tokens).
func (t *TokenStore) Save(ctx context.Context, pair types.TokenPair) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pair.RefreshToken == "" {
		pair.RefreshToken = t.pair.RefreshToken
	}
	t.pair = pair
	return t.store.SetJSON(ctx, types.KeyTokenPair, pair)
}

// Clear wipes the pair from memory and storage.
func (t *TokenStore) Clear(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pair = types.TokenPair{}
	_ = t.store.Delete(ctx, types.KeyTokenPair)
}
