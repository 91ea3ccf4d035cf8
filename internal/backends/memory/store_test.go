package memory

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

func TestRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "auth:token", []byte("v1")))
	got, err := s.Get(ctx, "auth:token")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("abc")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestDeleteMatching(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "user:preferences", []byte("a")))
	require.NoError(t, s.Set(ctx, "user:preferences:meta", []byte("b")))
	require.NoError(t, s.Set(ctx, "auth:token", []byte("c")))

	require.NoError(t, s.DeleteMatching(ctx, "user:preferences*"))

	_, err := s.Get(ctx, "user:preferences")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.Get(ctx, "user:preferences:meta")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.Get(ctx, "auth:token")
	assert.NoError(t, err)
}

func TestKeysPattern(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "cache:users", []byte("a")))
	require.NoError(t, s.Set(ctx, "cache:roles", []byte("b")))
	require.NoError(t, s.Set(ctx, "auth:token", []byte("c")))

	keys, err := s.Keys(ctx, "cache:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"cache:roles", "cache:users"}, keys)

	keys, err = s.Keys(ctx, "auth:token")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth:token"}, keys)
}
