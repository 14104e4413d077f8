package presence

import (
	"context"
	"testing"
)

func TestRegisterConnection_IsIdempotent(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	s := Session{UserID: "u1", ConnectionID: "c1", DeviceID: "d1", Platform: "android"}
	if err := r.RegisterConnection(ctx, s); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterConnection(ctx, s); err != nil {
		t.Fatalf("repeat register should succeed: %v", err)
	}

	conns, err := r.Connections(ctx, "u1")
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}
}

func TestSecondDeviceAddsConnectionWithoutDisturbingFirst(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.RegisterConnection(ctx, Session{UserID: "u1", ConnectionID: "c1", DeviceID: "phone"}); err != nil {
		t.Fatalf("register c1: %v", err)
	}
	if err := r.RegisterConnection(ctx, Session{UserID: "u1", ConnectionID: "c2", DeviceID: "tablet"}); err != nil {
		t.Fatalf("register c2: %v", err)
	}

	conns, _ := r.Connections(ctx, "u1")
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(conns))
	}

	// Dropping the second device keeps the user online on the first.
	if _, err := r.UnregisterConnection(ctx, "c2", UnregisterOptions{}); err != nil {
		t.Fatalf("unregister c2: %v", err)
	}
	online, _ := r.IsOnline(ctx, "u1")
	if !online {
		t.Fatalf("expected user online on remaining device")
	}
}

func TestUnregisterLastConnectionMarksOffline(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	_ = r.RegisterConnection(ctx, Session{UserID: "u1", ConnectionID: "c1"})
	uid, err := r.UnregisterConnection(ctx, "c1", UnregisterOptions{})
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("expected owner u1, got %q", uid)
	}

	online, _ := r.IsOnline(ctx, "u1")
	if online {
		t.Fatalf("expected offline after last connection removed")
	}
	p, ok, _ := r.Presence(ctx, "u1")
	if !ok || p.Status != StatusOffline {
		t.Fatalf("expected offline presence, got %+v (found=%v)", p, ok)
	}
}

func TestUnregisterUnknownConnectionIsNoop(t *testing.T) {
	r := NewMemoryRegistry()
	uid, err := r.UnregisterConnection(context.Background(), "ghost", UnregisterOptions{})
	if err != nil {
		t.Fatalf("expected retry-safe no-op, got %v", err)
	}
	if uid != "" {
		t.Fatalf("expected empty owner, got %q", uid)
	}
}

func TestPushTokenSurvivesDisconnectButNotLogout(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	_ = r.RegisterConnection(ctx, Session{UserID: "u1", ConnectionID: "c1"})
	if err := r.SetPushToken(ctx, "u1", "fcm-token"); err != nil {
		t.Fatalf("set push token: %v", err)
	}

	// Plain disconnect (app killed): credential must survive so an incoming
	// call can still reach the device.
	if _, err := r.UnregisterConnection(ctx, "c1", UnregisterOptions{}); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	tok, ok, _ := r.PushToken(ctx, "u1")
	if !ok || tok != "fcm-token" {
		t.Fatalf("expected push token preserved, got %q (found=%v)", tok, ok)
	}

	// Explicit logout deletes it.
	_ = r.RegisterConnection(ctx, Session{UserID: "u1", ConnectionID: "c2"})
	if _, err := r.UnregisterConnection(ctx, "c2", UnregisterOptions{DeletePushToken: true}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, _ := r.PushToken(ctx, "u1"); ok {
		t.Fatalf("expected push token deleted on logout")
	}
}

func TestSetPushTokenIgnoresEmptyToken(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	if err := r.SetPushToken(ctx, "u1", ""); err != nil {
		t.Fatalf("empty token should be a no-op: %v", err)
	}
	if _, ok, _ := r.PushToken(ctx, "u1"); ok {
		t.Fatalf("no token should be stored")
	}
}
