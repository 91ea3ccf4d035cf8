package prefs

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Cross-instance fan-out: every applied mutation is published tagged
// with this instance's origin ID; events from other instances are
// applied to the local tree without re-entering the sync pipeline
// (the originating instance already owns the server write).

func (s *Service) publish(change types.PendingChange) {
	if s.bcast == nil {
		return
	}
	ev := types.PrefEvent{
		Origin: s.origin,
		Path:   change.Path,
		Value:  change.Value,
		Remove: change.Remove,
	}
	if err := s.bcast.Publish(context.Background(), ev); err != nil {
		log.WithError(err).Debug("preference broadcast failed")
	}
}

// StartBroadcast subscribes to remote preference events until ctx is
// cancelled. No-op when no broadcaster is configured.
func (s *Service) StartBroadcast(ctx context.Context) error {
	if s.bcast == nil {
		return nil
	}
	return s.bcast.Subscribe(ctx, s.applyRemote)
}

func (s *Service) applyRemote(ev types.PrefEvent) {
	if ev.Origin == s.origin || len(ev.Path) == 0 {
		return
	}
	ctx := context.Background()
	s.mu.Lock()
	s.hydrateLocked(ctx)
	if ev.Remove {
		removePath(s.tree, ev.Path)
	} else {
		setPath(s.tree, ev.Path, cloneValue(ev.Value))
	}
	s.persistTreeLocked(ctx)
	s.mu.Unlock()
}
