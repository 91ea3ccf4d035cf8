package prefs

import (
	"strings"
	"time"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// MergeSnapshot reconciles a freshly fetched server snapshot with the
// current local tree. Rules, per path:
//   - both sides plain maps: recurse;
//   - the path (or a descendant) carries a pending change newer than
//     lastSyncedAt: local wins;
//   - otherwise: server wins.
//
// Paths present only on one side are kept. Pure function: inputs are
// not mutated and the result shares no references with them. Merging
// the same snapshot twice with no new local changes is idempotent.
func MergeSnapshot(server, local map[string]any, pending []types.PendingChange, lastSyncedAt time.Time) map[string]any {
	newer := make(map[string]bool)
	for _, p := range pending {
		if p.Timestamp.After(lastSyncedAt) {
			newer[joinPath(p.Path)] = true
		}
	}
	localWins := func(path string) bool {
		if newer[path] {
			return true
		}
		for p := range newer {
			if strings.HasPrefix(p, path+".") {
				return true
			}
		}
		return false
	}
	return mergeLevel(server, local, "", localWins)
}

func mergeLevel(server, local map[string]any, prefix string, localWins func(string) bool) map[string]any {
	out := make(map[string]any, len(server)+len(local))
	for k, sv := range server {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		lv, exists := local[k]
		if !exists {
			out[k] = cloneValue(sv)
			continue
		}
		sm, sok := sv.(map[string]any)
		lm, lok := lv.(map[string]any)
		if sok && lok {
			out[k] = mergeLevel(sm, lm, path, localWins)
			continue
		}
		if localWins(path) {
			out[k] = cloneValue(lv)
		} else {
			out[k] = cloneValue(sv)
		}
	}
	for k, lv := range local {
		if _, ok := server[k]; !ok {
			out[k] = cloneValue(lv)
		}
	}
	return out
}
