package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signaling-platform/internal/presence"

	"github.com/google/uuid"
)

// Bridge fans events out to the other server processes. Implemented over
// Redis pub/sub; nil-able for single-process setups and tests.
type Bridge interface {
	PublishEvent(ctx context.Context, userID string, ev Event) error
	PublishAck(ctx context.Context, eventID string) error
}

// Notifier delivers events to all live connections of a destination user,
// wherever those connections are held, optionally waiting for one
// acknowledgment with a bounded timeout.
type Notifier struct {
	hub      *Hub
	registry presence.Registry
	bridge   Bridge
	log      *slog.Logger
	clock    func() time.Time

	mu   sync.Mutex
	acks map[string]chan struct{}
}

func NewNotifier(hub *Hub, registry presence.Registry, bridge Bridge, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		hub:      hub,
		registry: registry,
		bridge:   bridge,
		log:      log,
		clock:    time.Now,
		acks:     make(map[string]chan struct{}),
	}
}

// Notify multicasts an event to every connection of userID.
//
// With RequireAck it blocks until the first acknowledgment or the ack
// timeout, never indefinitely. Partial delivery is tolerated: one ack from
// any device counts as success.
func (n *Notifier) Notify(ctx context.Context, userID, name string, payload any, opts Options) (Result, error) {
	conns, err := n.registry.Connections(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if len(conns) == 0 {
		return Result{Delivered: false, ConnectionCount: 0, Reason: ReasonNoConnections}, nil
	}

	ev := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: n.clock().UTC(),
	}

	var ackCh chan struct{}
	if opts.RequireAck {
		ackCh = make(chan struct{})
		n.mu.Lock()
		n.acks[ev.ID] = ackCh
		n.mu.Unlock()
		defer func() {
			n.mu.Lock()
			delete(n.acks, ev.ID)
			n.mu.Unlock()
		}()
	}

	n.deliverLocal(userID, ev)
	if n.bridge != nil {
		if err := n.bridge.PublishEvent(ctx, userID, ev); err != nil {
			n.log.Warn("fanout publish failed", "event", name, "user_id", userID, "err", err)
		}
	}

	if !opts.RequireAck {
		return Result{Delivered: true, ConnectionCount: len(conns)}, nil
	}

	timer := time.NewTimer(opts.AckTimeout)
	defer timer.Stop()
	select {
	case <-ackCh:
		return Result{Delivered: true, Acked: true, ConnectionCount: len(conns)}, nil
	case <-timer.C:
		return Result{Delivered: false, ConnectionCount: len(conns), Reason: ReasonAckTimeout}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Ack records a client acknowledgment for eventID. When no waiter lives on
// this process the ack is forwarded over the bridge: the event may have
// originated elsewhere while the acking socket lives here.
func (n *Notifier) Ack(ctx context.Context, eventID string) {
	if n.resolveAck(eventID) {
		return
	}
	if n.bridge != nil {
		if err := n.bridge.PublishAck(ctx, eventID); err != nil {
			n.log.Warn("ack publish failed", "event_id", eventID, "err", err)
		}
	}
}

// DeliverRemote hands an event received from another process to this
// process's local connections. Called by the bridge; never re-published.
func (n *Notifier) DeliverRemote(userID string, ev Event) {
	n.deliverLocal(userID, ev)
}

// ResolveRemoteAck completes a local ack waiter for an ack that arrived via
// the bridge. Returns false when no waiter lives here.
func (n *Notifier) ResolveRemoteAck(eventID string) bool {
	return n.resolveAck(eventID)
}

func (n *Notifier) deliverLocal(userID string, ev Event) {
	for _, c := range n.hub.ConnectionsFor(userID) {
		if err := c.SendEvent(ev); err != nil {
			n.log.Warn("send failed", "event", ev.Name, "user_id", userID, "conn_id", c.ID(), "err", err)
		}
	}
}

func (n *Notifier) resolveAck(eventID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.acks[eventID]
	if !ok {
		return false
	}
	delete(n.acks, eventID)
	close(ch)
	return true
}
