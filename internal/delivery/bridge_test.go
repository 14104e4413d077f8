package delivery

import (
	"encoding/json"
	"testing"
	"time"

	"signaling-platform/internal/presence"

	"github.com/redis/go-redis/v9"
)

func TestBridge_DeliversRemoteEventLocally(t *testing.T) {
	phone := &fakeConn{id: "c1", userID: "bob"}
	hub := NewHub()
	hub.Add(phone)
	n := NewNotifier(hub, presence.NewMemoryRegistry(), nil, nil)

	b := NewRedisBridge(nil, "proc-a", nil)
	b.Bind(n)

	payload, _ := json.Marshal(eventMessage{
		Origin: "proc-b",
		UserID: "bob",
		Event:  Event{ID: "ev1", Name: "incoming_call", Timestamp: time.Now()},
	})
	b.handle(&redis.Message{Channel: eventsChannel, Payload: string(payload)})

	evs := phone.received()
	if len(evs) != 1 || evs[0].ID != "ev1" {
		t.Fatalf("expected remote event delivered, got %+v", evs)
	}
}

func TestBridge_IgnoresOwnMessages(t *testing.T) {
	phone := &fakeConn{id: "c1", userID: "bob"}
	hub := NewHub()
	hub.Add(phone)
	n := NewNotifier(hub, presence.NewMemoryRegistry(), nil, nil)

	b := NewRedisBridge(nil, "proc-a", nil)
	b.Bind(n)

	payload, _ := json.Marshal(eventMessage{
		Origin: "proc-a", // self
		UserID: "bob",
		Event:  Event{ID: "ev1", Name: "incoming_call"},
	})
	b.handle(&redis.Message{Channel: eventsChannel, Payload: string(payload)})

	if len(phone.received()) != 0 {
		t.Fatalf("bridge must skip its own publications")
	}
}

func TestBridge_RemoteAckResolvesLocalWaiter(t *testing.T) {
	phone := &fakeConn{id: "c1", userID: "bob"}
	hub := NewHub()
	hub.Add(phone)
	reg := presence.NewMemoryRegistry()
	n := NewNotifier(hub, reg, nil, nil)

	b := NewRedisBridge(nil, "proc-a", nil)
	b.Bind(n)

	// Simulate a pending waiter by registering an ack channel through the
	// public surface: an unknown ack resolves nothing.
	if b.notifier.ResolveRemoteAck("nope") {
		t.Fatalf("unknown ack should not resolve")
	}

	payload, _ := json.Marshal(ackMessage{Origin: "proc-b", EventID: "nope"})
	b.handle(&redis.Message{Channel: acksChannel, Payload: string(payload)})
}

func TestBridge_BadPayloadIsIgnored(t *testing.T) {
	b := NewRedisBridge(nil, "proc-a", nil)
	b.Bind(NewNotifier(NewHub(), presence.NewMemoryRegistry(), nil, nil))
	b.handle(&redis.Message{Channel: eventsChannel, Payload: "not-json"})
	b.handle(&redis.Message{Channel: acksChannel, Payload: "not-json"})
}
