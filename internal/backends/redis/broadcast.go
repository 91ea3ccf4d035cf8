package redis

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

const broadcastChannel = "_tickprefs_events"

// Broadcaster fans preference events out over Redis pub/sub, the
// cross-instance analog of the browser storage event.
type Broadcaster struct {
	cli *redis.Client
}

func NewBroadcaster(cli *redis.Client) *Broadcaster {
	return &Broadcaster{cli: cli}
}

func (b *Broadcaster) Publish(ctx context.Context, ev types.PrefEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.cli.Publish(ctx, broadcastChannel, payload).Err()
}

// Subscribe delivers events on a background goroutine until ctx is
// cancelled. Undecodable messages are dropped with a debug log.
func (b *Broadcaster) Subscribe(ctx context.Context, fn func(types.PrefEvent)) error {
	sub := b.cli.Subscribe(ctx, broadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()
	go func() {
		defer func() {
			_ = sub.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev types.PrefEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.WithError(err).Debug("dropping undecodable preference event")
					continue
				}
				fn(ev)
			}
		}
	}()
	return nil
}

func (b *Broadcaster) Close() error {
	return nil
}
