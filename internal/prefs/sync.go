package prefs

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/gateway"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Debounced batching: every mutation resets the single-owner timer;
// when it fires, the union of pending changes goes out as one batched
// call (spilling into follow-ups past the batch cap). A syncInProgress
// guard keeps two syncs from overlapping; changes arriving mid-sync are
// picked up by the next cycle, never dropped.

// scheduleSync arms (or re-arms) the debounce timer.
func (s *Service) scheduleSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online {
		return
	}
	s.cancelTimerLocked()
	s.timer = time.AfterFunc(s.cfg.Debounce(), func() {
		if err := s.runSync(context.Background()); err != nil {
			log.WithError(err).Warn("scheduled preference sync failed")
		}
	})
}

func (s *Service) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Flush forces any pending sync to run now. A cycle already in flight
// is awaited first, so Flush never resolves before the network call it
// overlaps with has settled. Resolves immediately when already synced
// or offline.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	done := s.syncDone
	s.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.runSync(ctx)
}

func (s *Service) runSync(ctx context.Context) error {
	s.mu.Lock()
	if s.syncInProgress || !s.online || len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.syncInProgress = true
	s.syncDone = make(chan struct{})
	batch := s.pendingListLocked()
	s.mu.Unlock()

	// Oldest first, so server-side ordering matches arrival order.
	sort.Slice(batch, func(i, j int) bool { return batch[i].Timestamp.Before(batch[j].Timestamp) })

	err := s.pushBatches(ctx, batch)

	s.mu.Lock()
	s.syncInProgress = false
	close(s.syncDone)
	s.syncDone = nil
	retry := len(s.pending) > 0 && s.online && err == nil
	s.mu.Unlock()
	if retry {
		// Changes that arrived mid-sync get their own debounce cycle.
		s.scheduleSync()
	}
	return err
}

// pushBatches sends the snapshot in MaxBatchSize slices. A failure
// stops the loop; unacknowledged changes stay pending for retry and
// the cache is never rolled back.
func (s *Service) pushBatches(ctx context.Context, changes []types.PendingChange) error {
	size := s.cfg.BatchSize()
	for start := 0; start < len(changes); start += size {
		end := min(start+size, len(changes))
		if err := s.pushOne(ctx, changes[start:end]); err != nil {
			log.WithError(err).WithField("pending", s.Pending()).Warn("preference sync failed, will retry")
			return types.Err(types.ErrSync, err, "")
		}
	}
	return nil
}

func (s *Service) pushOne(ctx context.Context, changes []types.PendingChange) error {
	payload := make(map[string]any)
	var sets, removals []types.PendingChange
	for _, c := range changes {
		if c.Remove {
			removals = append(removals, c)
			continue
		}
		setPath(payload, c.Path, c.Value)
		sets = append(sets, c)
	}

	if len(payload) > 0 {
		err := s.gw.CallJSON(ctx, endpointPrefs, gateway.CallOptions{
			Method:       http.MethodPut,
			Body:         map[string]any{"preferences": payload},
			RequiresAuth: true,
		}, nil)
		if err != nil {
			return err
		}
		s.acknowledge(sets)
	}

	for _, c := range removals {
		_, err := s.gw.Call(ctx, removeEndpoint(c.Path), gateway.CallOptions{
			Method:       http.MethodDelete,
			RequiresAuth: true,
		})
		if err != nil {
			return err
		}
		s.acknowledge([]types.PendingChange{c})
	}
	return nil
}

// acknowledge drops confirmed changes from the pending set, unless a
// newer change for the same path arrived while the call was in flight
// (the entry's ID no longer matches the one that was sent).
func (s *Service) acknowledge(changes []types.PendingChange) {
	ctx := context.Background()
	s.mu.Lock()
	for _, c := range changes {
		key := joinPath(c.Path)
		if entry, ok := s.pending[key]; ok && entry.ID == c.ID {
			delete(s.pending, key)
		}
	}
	s.meta.LastSyncedAt = timeNow()
	s.persistTreeLocked(ctx)
	s.mu.Unlock()
}

// removeEndpoint builds DELETE /preferences/remove?path=a&path=b with
// one repeated query param per path segment.
func removeEndpoint(path []string) string {
	q := url.Values{}
	for _, seg := range path {
		q.Add("path", seg)
	}
	return endpointPrefsRemove + "?" + q.Encode()
}
