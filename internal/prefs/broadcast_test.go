package prefs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/backends/memory"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// chanBroadcaster is an in-process Broadcaster that fans every
// published event out to all subscribers, itself included, like a
// shared Redis channel would.
type chanBroadcaster struct {
	mu   sync.Mutex
	subs []func(types.PrefEvent)
}

func (b *chanBroadcaster) Publish(ctx context.Context, ev types.PrefEvent) error {
	b.mu.Lock()
	subs := append([]func(types.PrefEvent){}, b.subs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (b *chanBroadcaster) Subscribe(ctx context.Context, fn func(types.PrefEvent)) error {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
	return nil
}

func (b *chanBroadcaster) Close() error { return nil }

func newBroadcastPair(t *testing.T) (*Service, *Service) {
	t.Helper()
	bus := &chanBroadcaster{}
	cfg := types.ClientConfig{BaseURL: "http://localhost:0"}
	a := NewService(cfg, kv.New(memory.New()), nil, bus)
	b := NewService(cfg, kv.New(memory.New()), nil, bus)
	a.SetOnline(false) // keep the sync engine quiet, only fan-out matters here
	b.SetOnline(false)
	require.NoError(t, a.StartBroadcast(context.Background()))
	require.NoError(t, b.StartBroadcast(context.Background()))
	return a, b
}

// A mutation on one instance shows up on the other without the other
// instance syncing anything.
func TestBroadcastAppliesRemoteSet(t *testing.T) {
	a, b := newBroadcastPair(t)

	a.Set([]string{"theme"}, "dark")

	v, ok := b.Get("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", v)
	assert.Equal(t, 0, b.Pending(), "remote events never re-enter the sync pipeline")
	assert.Equal(t, 1, a.Pending())
}

func TestBroadcastAppliesRemoteRemove(t *testing.T) {
	a, b := newBroadcastPair(t)
	b.Set([]string{"theme"}, "light")

	a.Set([]string{"theme"}, "dark")
	a.Remove("theme")

	_, ok := b.Get("theme")
	assert.False(t, ok)
}

// An instance ignores the events it published itself.
func TestBroadcastSkipsOwnOrigin(t *testing.T) {
	bus := &chanBroadcaster{}
	cfg := types.ClientConfig{BaseURL: "http://localhost:0"}
	svc := NewService(cfg, kv.New(memory.New()), nil, bus)
	svc.SetOnline(false)
	require.NoError(t, svc.StartBroadcast(context.Background()))

	svc.Set([]string{"theme"}, "dark")
	svc.applyRemote(types.PrefEvent{Origin: svc.origin, Path: []string{"theme"}, Value: "light"})

	v, _ := svc.Get("theme")
	assert.Equal(t, "dark", v)
}
