package gateway

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SignalBus carries session-level notifications to the UI shell: one
// session-expired callback and one forbidden callback, last
// registration wins. Notifications are suppressed during the post-login
// grace window and while a logout is in progress, so known-benign
// transitions never pop a session dialog.
type SignalBus struct {
	mu               sync.Mutex
	onSessionExpired func()
	onForbidden      func(message string)
	graceUntil       time.Time
	loggingOut       bool
	grace            time.Duration
}

func NewSignalBus(grace time.Duration) *SignalBus {
	return &SignalBus{grace: grace}
}

// OnSessionExpired registers the session-expired handler. The previous
// handler, if any, is replaced.
func (b *SignalBus) OnSessionExpired(fn func()) {
	b.mu.Lock()
	b.onSessionExpired = fn
	b.mu.Unlock()
}

// OnForbidden registers the forbidden handler. The previous handler,
// if any, is replaced.
func (b *SignalBus) OnForbidden(fn func(message string)) {
	b.mu.Lock()
	b.onForbidden = fn
	b.mu.Unlock()
}

// StartGracePeriod arms the settling window. Called by the session
// module right after login, while auth state may still be propagating.
func (b *SignalBus) StartGracePeriod() {
	b.mu.Lock()
	b.graceUntil = timeNow().Add(b.grace)
	b.mu.Unlock()
}

// SetLoggingOut flags an intentional logout; expiry signals during it
// are expected noise. Independent of the grace period.
func (b *SignalBus) SetLoggingOut(v bool) {
	b.mu.Lock()
	b.loggingOut = v
	b.mu.Unlock()
}

// NotifySessionExpired fires the session-expired handler unless
// suppressed. Firing re-arms the grace window, so a storm of failing
// requests produces at most one dialog per window.
func (b *SignalBus) NotifySessionExpired() {
	b.mu.Lock()
	if b.suppressedLocked() {
		b.mu.Unlock()
		return
	}
	fn := b.onSessionExpired
	b.graceUntil = timeNow().Add(b.grace)
	b.mu.Unlock()
	if fn != nil {
		safeInvoke(func() { fn() })
	}
}

// NotifyForbidden fires the forbidden handler with the parsed server
// message, unless suppressed.
func (b *SignalBus) NotifyForbidden(message string) {
	b.mu.Lock()
	if b.suppressedLocked() {
		b.mu.Unlock()
		return
	}
	fn := b.onForbidden
	b.mu.Unlock()
	if fn != nil {
		safeInvoke(func() { fn(message) })
	}
}

func (b *SignalBus) suppressedLocked() bool {
	if b.loggingOut {
		return true
	}
	if b.graceUntil.IsZero() {
		return false
	}
	if timeNow().Before(b.graceUntil) {
		return true
	}
	b.graceUntil = time.Time{} // expired, clear lazily
	return false
}

// safeInvoke shields the gateway control flow from a throwing handler.
func safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("session signal handler panicked: %v", r)
		}
	}()
	fn()
}
