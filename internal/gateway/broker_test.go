package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/backends/memory"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

func newBrokerFixture(t *testing.T) (*Broker, *TokenStore) {
	t.Helper()
	store := kv.New(memory.New())
	tokens := NewTokenStore(store)
	require.NoError(t, tokens.Save(context.Background(), types.TokenPair{
		AccessToken:  "stale",
		RefreshToken: "refresh",
	}))
	return NewBroker(tokens, NewSignalBus(types.LoginGracePeriod)), tokens
}

// Callers arriving while a refresh is in flight join the queue instead
// of starting their own; all settle with the leader's outcome.
func TestJoinersShareTheLeadersRefresh(t *testing.T) {
	broker, tokens := newBrokerFixture(t)

	release := make(chan struct{})
	var calls atomic.Int64
	broker.RegisterRefresh(func(ctx context.Context, refreshToken string) (types.TokenPair, error) {
		calls.Add(1)
		<-release
		return types.TokenPair{AccessToken: "fresh"}, nil
	}, func() {})

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- broker.EnsureFresh(context.Background(), "stale")
		}()
	}
	// Let the leader start and the rest queue up before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, "fresh", tokens.Access())
}

// A caller whose token already rotated under it skips the refresh and
// replays directly.
func TestEnsureFreshSkipsRotatedToken(t *testing.T) {
	broker, tokens := newBrokerFixture(t)
	var calls atomic.Int64
	broker.RegisterRefresh(func(ctx context.Context, refreshToken string) (types.TokenPair, error) {
		calls.Add(1)
		return types.TokenPair{AccessToken: "fresh-2"}, nil
	}, func() {})
	require.NoError(t, tokens.Save(context.Background(), types.TokenPair{AccessToken: "fresh"}))

	assert.NoError(t, broker.EnsureFresh(context.Background(), "stale"))
	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, "fresh", tokens.Access())
}

// A queued caller whose context dies stops waiting; the leader finishes
// undisturbed because waiter channels are buffered.
func TestQueuedCallerHonorsContext(t *testing.T) {
	broker, _ := newBrokerFixture(t)

	release := make(chan struct{})
	broker.RegisterRefresh(func(ctx context.Context, refreshToken string) (types.TokenPair, error) {
		<-release
		return types.TokenPair{AccessToken: "fresh"}, nil
	}, func() {})

	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- broker.EnsureFresh(context.Background(), "stale")
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- broker.EnsureFresh(ctx, "stale")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-waiterDone, context.Canceled)
	close(release)
	assert.NoError(t, <-leaderDone)
}

// Refresh failure tears the session down: tokens wiped, logout hook
// invoked, and the outcome is an auth error for every caller.
func TestRefreshFailureTearsDownSession(t *testing.T) {
	broker, tokens := newBrokerFixture(t)
	var loggedOut atomic.Bool
	broker.RegisterRefresh(func(ctx context.Context, refreshToken string) (types.TokenPair, error) {
		return types.TokenPair{}, assert.AnError
	}, func() { loggedOut.Store(true) })

	err := broker.EnsureFresh(context.Background(), "stale")
	assert.ErrorIs(t, err, types.ErrAuth)
	assert.True(t, loggedOut.Load())
	assert.Empty(t, tokens.Access())
	assert.False(t, broker.CanRefresh())
}

func TestCanRefresh(t *testing.T) {
	broker, tokens := newBrokerFixture(t)
	assert.False(t, broker.CanRefresh(), "no refresh function registered yet")

	broker.RegisterRefresh(func(ctx context.Context, refreshToken string) (types.TokenPair, error) {
		return types.TokenPair{}, nil
	}, func() {})
	assert.True(t, broker.CanRefresh())

	tokens.Clear(context.Background())
	assert.False(t, broker.CanRefresh(), "no refresh token left")
}
