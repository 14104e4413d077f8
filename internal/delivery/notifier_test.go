package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"signaling-platform/internal/presence"
)

// fakeConn records delivered events and can ack them through the notifier.
type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []Event
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) SendEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestNotifier(t *testing.T, conns ...*fakeConn) (*Notifier, *presence.MemoryRegistry) {
	t.Helper()
	hub := NewHub()
	reg := presence.NewMemoryRegistry()
	for _, c := range conns {
		hub.Add(c)
		if err := reg.RegisterConnection(context.Background(), presence.Session{UserID: c.userID, ConnectionID: c.id}); err != nil {
			t.Fatalf("register %s: %v", c.id, err)
		}
	}
	return NewNotifier(hub, reg, nil, nil), reg
}

func TestNotify_NoConnections(t *testing.T) {
	n, _ := newTestNotifier(t)

	res, err := n.Notify(context.Background(), "nobody", "incoming_call", nil, Options{})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if res.Delivered || res.ConnectionCount != 0 || res.Reason != ReasonNoConnections {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestNotify_BestEffortMulticastsToAllDevices(t *testing.T) {
	phone := &fakeConn{id: "c1", userID: "bob"}
	tablet := &fakeConn{id: "c2", userID: "bob"}
	n, _ := newTestNotifier(t, phone, tablet)

	res, err := n.Notify(context.Background(), "bob", "call_end", map[string]string{"call_id": "x"}, Options{})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !res.Delivered || res.ConnectionCount != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, c := range []*fakeConn{phone, tablet} {
		evs := c.received()
		if len(evs) != 1 || evs[0].Name != "call_end" {
			t.Fatalf("conn %s: unexpected events %+v", c.id, evs)
		}
		if evs[0].ID == "" || evs[0].Timestamp.IsZero() {
			t.Fatalf("conn %s: event missing id/timestamp: %+v", c.id, evs[0])
		}
	}
}

func TestNotify_RequireAckResolvedByFirstAck(t *testing.T) {
	phone := &fakeConn{id: "c1", userID: "bob"}
	n, _ := newTestNotifier(t, phone)

	done := make(chan Result, 1)
	go func() {
		res, err := n.Notify(context.Background(), "bob", "incoming_call", nil, Options{RequireAck: true, AckTimeout: time.Second})
		if err != nil {
			t.Errorf("notify: %v", err)
		}
		done <- res
	}()

	// Wait for the event to land, then ack it like a client would.
	var evID string
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if evs := phone.received(); len(evs) > 0 {
			evID = evs[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if evID == "" {
		t.Fatalf("event never delivered")
	}
	n.Ack(context.Background(), evID)

	select {
	case res := <-done:
		if !res.Delivered || !res.Acked {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notify did not return")
	}
}

func TestNotify_RequireAckTimesOut(t *testing.T) {
	phone := &fakeConn{id: "c1", userID: "bob"}
	n, _ := newTestNotifier(t, phone)

	start := time.Now()
	res, err := n.Notify(context.Background(), "bob", "incoming_call", nil, Options{RequireAck: true, AckTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if res.Delivered || res.Reason != ReasonAckTimeout {
		t.Fatalf("unexpected result: %+v", res)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("notify blocked far past its ack timeout")
	}
}

func TestNotify_RegistryIsTruthNotLocalHub(t *testing.T) {
	// A connection registered on another process: in the registry, absent
	// from the local hub. Delivery must still count it and not report
	// no_connections.
	hub := NewHub()
	reg := presence.NewMemoryRegistry()
	_ = reg.RegisterConnection(context.Background(), presence.Session{UserID: "bob", ConnectionID: "remote-c1"})
	n := NewNotifier(hub, reg, nil, nil)

	res, err := n.Notify(context.Background(), "bob", "call_end", nil, Options{})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !res.Delivered || res.ConnectionCount != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAck_WithoutWaiterIsSafe(t *testing.T) {
	n, _ := newTestNotifier(t)
	n.Ack(context.Background(), "unknown-event")
}

func TestHub_RemoveDropsConnection(t *testing.T) {
	hub := NewHub()
	c1 := &fakeConn{id: "c1", userID: "bob"}
	c2 := &fakeConn{id: "c2", userID: "bob"}
	hub.Add(c1)
	hub.Add(c2)

	hub.Remove("c1")
	conns := hub.ConnectionsFor("bob")
	if len(conns) != 1 || conns[0].ID() != "c2" {
		t.Fatalf("unexpected connections after remove: %d", len(conns))
	}

	hub.Remove("c2")
	if len(hub.ConnectionsFor("bob")) != 0 || hub.Count() != 0 {
		t.Fatalf("hub should be empty")
	}

	// Removing an unknown connection is a no-op.
	hub.Remove("ghost")
}
