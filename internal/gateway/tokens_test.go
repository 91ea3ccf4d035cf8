package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/backends/memory"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	store := kv.New(memory.New())
	ctx := context.Background()

	tokens := NewTokenStore(store)
	require.NoError(t, tokens.Save(ctx, types.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	// A second store over the same backend sees the persisted pair.
	revived := NewTokenStore(store)
	revived.Load(ctx)
	assert.Equal(t, "a1", revived.Access())
	assert.Equal(t, "r1", revived.Refresh())
}

// Servers that do not rotate refresh tokens send an empty one back; the
// previous refresh token must survive the save.
func TestSaveKeepsRefreshTokenWhenOmitted(t *testing.T) {
	tokens := NewTokenStore(kv.New(memory.New()))
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, types.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, tokens.Save(ctx, types.TokenPair{AccessToken: "a2"}))

	assert.Equal(t, "a2", tokens.Access())
	assert.Equal(t, "r1", tokens.Refresh())
	assert.True(t, tokens.HasRefresh())
}

func TestClearWipesMemoryAndStorage(t *testing.T) {
	store := kv.New(memory.New())
	tokens := NewTokenStore(store)
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, types.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	tokens.Clear(ctx)
	assert.Empty(t, tokens.Access())
	assert.False(t, tokens.HasRefresh())

	var pair types.TokenPair
	assert.ErrorIs(t, store.GetJSON(ctx, types.KeyTokenPair, &pair), types.ErrNotFound)
}

func TestLoadMissingLeavesEmpty(t *testing.T) {
	tokens := NewTokenStore(kv.New(memory.New()))
	tokens.Load(context.Background())
	assert.Empty(t, tokens.Access())
	assert.False(t, tokens.HasRefresh())
}
