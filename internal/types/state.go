package types

import "time"

// Storage key layout. Keys are namespaced so whole families can be
// invalidated with a single pattern (e.g. "auth:*", "cache:*").
const (
	KeyTokenPair       = "auth:token"
	KeyPreferences     = "user:preferences"
	KeyPreferencesMeta = "user:preferences:meta"
	// KeyPreferencesPending mirrors the unsynced change set so pending
	// mutations survive a restart, not just an offline window.
	KeyPreferencesPending = "user:preferences:pending"
	CacheKeyPrefix        = "cache:"
)

// TokenPair is the persisted access/refresh credential pair.
// An empty RefreshToken means the session cannot auto-refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// PendingChange is a local preference mutation applied to the cache but
// not yet acknowledged by the server. Remove marks a deletion; Value is
// ignored for removals.
type PendingChange struct {
	ID        string    `json:"id"`
	Path      []string  `json:"path"`
	Value     any       `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Remove    bool      `json:"remove,omitempty"`
}

// SyncMetadata is persisted alongside the preference cache so a reload
// can tell whether the cache is trustworthy or must be refetched.
type SyncMetadata struct {
	LastSyncedAt time.Time `json:"last_synced_at"`
	PendingCount int       `json:"pending_count"`
}

// CacheEntry is a generic cached value with its own TTL, used for
// non-preference data (session config, lookup tables).
type CacheEntry struct {
	Value     any       `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// PrefEvent is a preference mutation broadcast to other instances of
// the client sharing the same storage (the cross-tab channel).
// Origin identifies the publishing instance so it can skip its own
// events.
type PrefEvent struct {
	Origin string   `json:"origin"`
	Path   []string `json:"path"`
	Value  any      `json:"value,omitempty"`
	Remove bool     `json:"remove,omitempty"`
}
