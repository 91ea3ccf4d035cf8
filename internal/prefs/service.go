// Package prefs is the offline-first preference engine: an in-memory
// tree mirrored to durable storage, read synchronously by the rest of
// the app, with debounced batched synchronization to the server and
// conflict-merged reloads.
package prefs

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/gateway"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/ports"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

type Service struct {
	mu    sync.Mutex
	cfg   types.ClientConfig
	store *kv.Store
	gw    *gateway.Client
	bcast ports.Broadcaster

	// origin tags broadcast events so this instance skips its own.
	origin string

	tree    map[string]any
	pending map[string]types.PendingChange // keyed by joined path, last write wins
	meta    types.SyncMetadata

	timer          *time.Timer
	online         bool
	syncInProgress bool
	// syncDone is open while a sync cycle is in flight; closed when it
	// settles, so Flush can await it.
	syncDone chan struct{}
	hydrated bool
}

// NewService builds the engine. bcast may be nil (no cross-instance
// fan-out). Nothing is read or fetched until Initialize.
func NewService(cfg types.ClientConfig, store *kv.Store, gw *gateway.Client, bcast ports.Broadcaster) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		gw:      gw,
		bcast:   bcast,
		origin:  uuid.NewString(),
		tree:    make(map[string]any),
		pending: make(map[string]types.PendingChange),
		online:  true,
	}
}

// Initialize is the offline-first bootstrap: a valid persisted cache is
// used as-is with zero network calls; only an empty/invalid cache or
// forceReload triggers a server fetch, and the fetched snapshot is
// merged (never overwritten) so unsynced local changes survive.
func (s *Service) Initialize(ctx context.Context, forceReload bool) error {
	s.mu.Lock()
	s.hydrateLocked(ctx)
	if !forceReload && len(s.tree) > 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var snapshot map[string]any
	err := s.gw.CallJSON(ctx, endpointPrefs, gateway.CallOptions{RequiresAuth: true}, &snapshot)
	if err != nil {
		log.WithError(err).Warn("preference fetch failed, keeping local cache")
		return types.Err(types.ErrSync, err, "initial fetch")
	}

	s.mu.Lock()
	s.tree = MergeSnapshot(snapshot, s.tree, s.pendingListLocked(), s.meta.LastSyncedAt)
	s.persistTreeLocked(ctx)
	s.mu.Unlock()
	return nil
}

// hydrateLocked loads tree, metadata and the surviving pending set from
// storage, once.
func (s *Service) hydrateLocked(ctx context.Context) {
	if s.hydrated {
		return
	}
	s.hydrated = true
	var tree map[string]any
	s.store.GetJSONOr(ctx, types.KeyPreferences, &tree, func() {
		tree = make(map[string]any)
	})
	if tree == nil {
		tree = make(map[string]any)
	}
	s.tree = tree

	var meta types.SyncMetadata
	s.store.GetJSONOr(ctx, types.KeyPreferencesMeta, &meta, func() {
		meta = types.SyncMetadata{}
	})
	s.meta = meta

	var pendingList []types.PendingChange
	s.store.GetJSONOr(ctx, types.KeyPreferencesPending, &pendingList, func() {
		pendingList = nil
	})
	for _, p := range pendingList {
		s.pending[joinPath(p.Path)] = p
	}
}

// Get returns the value at path, cache-only. Never touches the network.
func (s *Service) Get(path ...string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := getPath(s.tree, path)
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// GetAll returns a copy of the whole tree, cache-only.
func (s *Service) GetAll() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTree(s.tree)
}

// Set applies the mutation to cache and storage immediately and
// schedules a debounced sync. Fire-and-forget; use SetNow to await
// confirmed server persistence.
func (s *Service) Set(path []string, value any) {
	s.mutate(path, value, false, true)
}

// Update applies a partial tree; every leaf becomes its own pending
// change, so later per-path writes supersede it cleanly.
func (s *Service) Update(partial map[string]any) {
	flattenLeaves(partial, nil, func(path []string, value any) {
		s.mutate(path, value, false, true)
	})
}

// Remove deletes the value at path and schedules a sync.
func (s *Service) Remove(path ...string) {
	s.mutate(path, nil, true, true)
}

// SetNow applies the mutation and pushes it to the server immediately,
// bypassing the debounce window.
func (s *Service) SetNow(ctx context.Context, path []string, value any) error {
	change := s.mutate(path, value, false, false)
	err := s.gw.CallJSON(ctx, endpointPrefsSet, gateway.CallOptions{
		Method:       http.MethodPost,
		Body:         map[string]any{"path": path, "value": value},
		RequiresAuth: true,
	}, nil)
	if err != nil {
		// Stays pending; the next debounced sync retries it.
		s.scheduleSync()
		return types.Err(types.ErrSync, err, "set %s", joinPath(path))
	}
	s.acknowledge([]types.PendingChange{change})
	return nil
}

// RemoveNow deletes the value and confirms the removal with the server
// immediately.
func (s *Service) RemoveNow(ctx context.Context, path ...string) error {
	change := s.mutate(path, nil, true, false)
	_, err := s.gw.Call(ctx, removeEndpoint(path), gateway.CallOptions{
		Method:       http.MethodDelete,
		RequiresAuth: true,
	})
	if err != nil {
		s.scheduleSync()
		return types.Err(types.ErrSync, err, "remove %s", joinPath(path))
	}
	s.acknowledge([]types.PendingChange{change})
	return nil
}

// Clear wipes the local cache, pending set and metadata, and asks the
// server to drop the stored preferences. Used on logout.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.tree = make(map[string]any)
	s.pending = make(map[string]types.PendingChange)
	s.meta = types.SyncMetadata{}
	_ = s.store.Invalidate(ctx, types.KeyPreferences+"*")
	s.mu.Unlock()

	_, err := s.gw.Call(ctx, endpointPrefsClear, gateway.CallOptions{
		Method:       http.MethodDelete,
		RequiresAuth: true,
	})
	if err != nil {
		return types.Err(types.ErrSync, err, "clear")
	}
	return nil
}

// SetOnline feeds the connectivity signal. Going offline pauses sync
// attempts (mutations keep applying and queueing); coming back online
// triggers exactly one automatic flush of everything accumulated.
func (s *Service) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	if !online {
		s.cancelTimerLocked()
	}
	flush := online && !wasOnline && len(s.pending) > 0
	s.mu.Unlock()
	if flush {
		go func() {
			if err := s.Flush(context.Background()); err != nil {
				log.WithError(err).Warn("flush after reconnect failed")
			}
		}()
	}
}

// Pending reports the number of unconfirmed changes.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CancelPendingSync clears the debounce timer without discarding the
// already-applied cache mutations; they stay pending and are retried on
// the next mutation or explicit flush.
func (s *Service) CancelPendingSync() {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.mu.Unlock()
}

// mutate applies a change to tree + storage, records it pending, and
// optionally schedules the debounced sync.
func (s *Service) mutate(path []string, value any, remove bool, schedule bool) types.PendingChange {
	if len(path) == 0 {
		return types.PendingChange{}
	}
	ctx := context.Background()
	s.mu.Lock()
	s.hydrateLocked(ctx)
	if remove {
		removePath(s.tree, path)
	} else {
		setPath(s.tree, path, cloneValue(value))
	}
	change := types.PendingChange{
		ID:        uuid.NewString(),
		Path:      append([]string{}, path...),
		Value:     cloneValue(value),
		Timestamp: timeNow(),
		Remove:    remove,
	}
	s.pending[joinPath(path)] = change
	s.persistTreeLocked(ctx)
	s.mu.Unlock()

	if schedule {
		s.scheduleSync()
	}
	s.publish(change)
	return change
}

func (s *Service) persistTreeLocked(ctx context.Context) {
	if err := s.store.SetJSON(ctx, types.KeyPreferences, s.tree); err != nil {
		log.WithError(err).Warn("failed to persist preference cache")
	}
	s.meta.PendingCount = len(s.pending)
	if err := s.store.SetJSON(ctx, types.KeyPreferencesMeta, s.meta); err != nil {
		log.WithError(err).Warn("failed to persist sync metadata")
	}
	if err := s.store.SetJSON(ctx, types.KeyPreferencesPending, s.pendingListLocked()); err != nil {
		log.WithError(err).Warn("failed to persist pending changes")
	}
}

func (s *Service) pendingListLocked() []types.PendingChange {
	out := make([]types.PendingChange, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	return out
}
