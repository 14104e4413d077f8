package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Pub/sub channels shared by all server processes. Every instance publishes
// with its own origin id and ignores its own messages on receive.
const (
	eventsChannel = "sig:fanout:events"
	acksChannel   = "sig:fanout:acks"
)

type eventMessage struct {
	Origin string `json:"origin"`
	UserID string `json:"user_id"`
	Event  Event  `json:"event"`
}

type ackMessage struct {
	Origin  string `json:"origin"`
	EventID string `json:"event_id"`
}

// RedisBridge carries fan-out events and acks between server processes over
// Redis pub/sub. The bridge holds no call state of its own.
type RedisBridge struct {
	rdb      *redis.Client
	origin   string
	notifier *Notifier
	log      *slog.Logger
}

// NewRedisBridge creates a bridge identified by origin (unique per process).
// Call Bind before Run, then attach the bridge to the Notifier.
func NewRedisBridge(rdb *redis.Client, origin string, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{rdb: rdb, origin: origin, log: log}
}

// Bind connects the bridge to the notifier that receives remote traffic.
// Separate from the constructor because bridge and notifier reference each
// other.
func (b *RedisBridge) Bind(n *Notifier) {
	b.notifier = n
}

func (b *RedisBridge) PublishEvent(ctx context.Context, userID string, ev Event) error {
	data, err := json.Marshal(eventMessage{Origin: b.origin, UserID: userID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal fanout event: %w", err)
	}
	return b.rdb.Publish(ctx, eventsChannel, data).Err()
}

func (b *RedisBridge) PublishAck(ctx context.Context, eventID string) error {
	data, err := json.Marshal(ackMessage{Origin: b.origin, EventID: eventID})
	if err != nil {
		return fmt.Errorf("marshal fanout ack: %w", err)
	}
	return b.rdb.Publish(ctx, acksChannel, data).Err()
}

// Run subscribes to the fan-out channels and pumps messages until ctx is
// canceled. Blocks; run it on its own goroutine.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, eventsChannel, acksChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg)
		}
	}
}

func (b *RedisBridge) handle(msg *redis.Message) {
	if b.notifier == nil {
		return
	}
	switch msg.Channel {
	case eventsChannel:
		var em eventMessage
		if err := json.Unmarshal([]byte(msg.Payload), &em); err != nil {
			b.log.Warn("bad fanout event payload", "err", err)
			return
		}
		if em.Origin == b.origin {
			return
		}
		b.notifier.DeliverRemote(em.UserID, em.Event)
	case acksChannel:
		var am ackMessage
		if err := json.Unmarshal([]byte(msg.Payload), &am); err != nil {
			b.log.Warn("bad fanout ack payload", "err", err)
			return
		}
		if am.Origin == b.origin {
			return
		}
		b.notifier.ResolveRemoteAck(am.EventID)
	}
}
