package gateway

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/ports"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Broker coordinates token refresh: at most one refresh call is in
// flight at any time. The first caller that observes a 401 becomes the
// leader and runs the injected refresh function; every caller arriving
// while it is outstanding is queued and resolved in join order with
// the leader's outcome. On failure the broker clears tokens, runs the
// logout hook and raises the session-expired signal exactly once.
type Broker struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan error

	refreshFn ports.RefreshFunc
	logoutFn  ports.LogoutFunc

	tokens  *TokenStore
	signals *SignalBus
}

func NewBroker(tokens *TokenStore, signals *SignalBus) *Broker {
	return &Broker{tokens: tokens, signals: signals}
}

// RegisterRefresh installs the refresh function and the synchronous
// logout hook. Registered once at startup by the session module; a
// later registration replaces the earlier one.
func (b *Broker) RegisterRefresh(refresh ports.RefreshFunc, logout ports.LogoutFunc) {
	b.mu.Lock()
	b.refreshFn = refresh
	b.logoutFn = logout
	b.mu.Unlock()
}

// CanRefresh reports whether a refresh is worth attempting: a refresh
// function is registered and a refresh token exists.
func (b *Broker) CanRefresh() bool {
	b.mu.Lock()
	registered := b.refreshFn != nil
	b.mu.Unlock()
	return registered && b.tokens.HasRefresh()
}

// EnsureFresh blocks until a refresh settles. If one is already in
// flight the caller joins the queue; otherwise the caller leads. All
// queued callers observe the leader's outcome, in join order.
// staleToken is the access token the caller's 401 was issued with; if
// the current token already differs, a refresh has happened since and
// the caller can replay right away.
func (b *Broker) EnsureFresh(ctx context.Context, staleToken string) error {
	b.mu.Lock()
	if b.refreshing {
		ch := make(chan error, 1)
		b.waiters = append(b.waiters, ch)
		b.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if cur := b.tokens.Access(); cur != "" && cur != staleToken {
		b.mu.Unlock()
		return nil
	}
	b.refreshing = true
	refreshFn := b.refreshFn
	b.mu.Unlock()

	err := b.runRefresh(ctx, refreshFn)

	b.mu.Lock()
	b.refreshing = false
	waiters := b.waiters
	b.waiters = nil
	b.mu.Unlock()
	for _, w := range waiters {
		w <- err
	}
	return err
}

func (b *Broker) runRefresh(ctx context.Context, refreshFn ports.RefreshFunc) error {
	if refreshFn == nil {
		b.failSession(ctx)
		return types.Err(types.ErrAuth, nil, "no refresh function registered")
	}
	refreshToken := b.tokens.Refresh()
	if refreshToken == "" {
		b.failSession(ctx)
		return types.Err(types.ErrAuth, nil, "no refresh token")
	}
	pair, err := refreshFn(ctx, refreshToken)
	if err != nil {
		log.WithError(err).Warn("token refresh failed")
		b.failSession(ctx)
		return types.Err(types.ErrAuth, err, "token refresh failed")
	}
	if err := b.tokens.Save(ctx, pair); err != nil {
		// The new token still lives in memory; storage catches up on
		// the next save.
		log.WithError(err).Warn("failed to persist refreshed tokens")
	}
	return nil
}

// failSession is the unrecoverable path: wipe credentials, run the
// logout hook, raise the signal (subject to suppression).
func (b *Broker) failSession(ctx context.Context) {
	b.tokens.Clear(ctx)
	b.mu.Lock()
	logout := b.logoutFn
	b.mu.Unlock()
	if logout != nil {
		safeInvoke(logout)
	}
	b.signals.NotifySessionExpired()
}
