package ports

import (
	"context"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// Broadcaster fans preference mutations out to other client instances
// sharing the same storage. Subscribe MUST deliver events until ctx is
// cancelled; delivery is best-effort and publishers MUST tolerate zero
// subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, ev types.PrefEvent) error

	Subscribe(ctx context.Context, fn func(types.PrefEvent)) error

	Close() error
}
