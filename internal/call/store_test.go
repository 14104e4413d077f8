package call

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newRingingCall(t *testing.T, s *MemoryStore, id, caller, callee string) Call {
	t.Helper()
	c := Call{ID: id, CallerID: caller, CalleeID: callee, Type: TypeVideo}
	if err := s.Create(context.Background(), c); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return got
}

func TestCreate_RejectsInvalidArgs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []Call{
		{ID: "", CallerID: "a", CalleeID: "b", Type: TypeAudio},
		{ID: "c1", CallerID: "", CalleeID: "b", Type: TypeAudio},
		{ID: "c1", CallerID: "a", CalleeID: "a", Type: TypeAudio},
		{ID: "c1", CallerID: "a", CalleeID: "b", Type: "screenshare"},
	}
	for _, c := range cases {
		if err := s.Create(ctx, c); err != ErrInvalidArgument {
			t.Fatalf("call %+v: expected ErrInvalidArgument, got %v", c, err)
		}
	}
}

func TestCreate_BusyCheckCoversBothParticipants(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	newRingingCall(t, s, "c1", "alice", "bob")

	// Caller busy.
	if err := s.Create(ctx, Call{ID: "c2", CallerID: "alice", CalleeID: "carol", Type: TypeAudio}); err != ErrBusy {
		t.Fatalf("expected ErrBusy for busy caller, got %v", err)
	}
	// Callee busy.
	if err := s.Create(ctx, Call{ID: "c3", CallerID: "carol", CalleeID: "bob", Type: TypeAudio}); err != ErrBusy {
		t.Fatalf("expected ErrBusy for busy callee, got %v", err)
	}
	// Unrelated pair is unaffected.
	if err := s.Create(ctx, Call{ID: "c4", CallerID: "carol", CalleeID: "dave", Type: TypeAudio}); err != nil {
		t.Fatalf("unrelated pair should succeed: %v", err)
	}
}

func TestCreate_SimultaneousCrossCallsOnlyOneWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = s.Create(ctx, Call{ID: "ab", CallerID: "alice", CalleeID: "bob", Type: TypeVideo})
	}()
	go func() {
		defer wg.Done()
		errs[1] = s.Create(ctx, Call{ID: "ba", CallerID: "bob", CalleeID: "alice", Type: TypeVideo})
	}()
	wg.Wait()

	var okCount, busyCount int
	for _, err := range errs {
		switch err {
		case nil:
			okCount++
		case ErrBusy:
			busyCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || busyCount != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d busy=%d", okCount, busyCount)
	}
}

func TestAccept_OnlyFromRinging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c := newRingingCall(t, s, "c1", "alice", "bob")

	got, ok, err := s.Accept(ctx, c.ID)
	if err != nil || !ok {
		t.Fatalf("accept: ok=%v err=%v", ok, err)
	}
	if got.State != StateAccepted || got.CallerID != "alice" || got.CalleeID != "bob" {
		t.Fatalf("unexpected call after accept: %+v", got)
	}

	// Second accept lost the race with itself; expected no-op.
	if _, ok, err := s.Accept(ctx, c.ID); err != nil || ok {
		t.Fatalf("repeat accept should be a no-op, got ok=%v err=%v", ok, err)
	}
}

func TestRejectThenEndLeavesRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c := newRingingCall(t, s, "c1", "alice", "bob")
	if _, ok, err := s.Reject(ctx, c.ID); err != nil || !ok {
		t.Fatalf("reject: ok=%v err=%v", ok, err)
	}

	// End after reject is a no-op; rejected is terminal.
	if _, ok, err := s.End(ctx, c.ID); err != nil || ok {
		t.Fatalf("end after reject should no-op, got ok=%v err=%v", ok, err)
	}
	got, _ := s.Get(ctx, c.ID)
	if got.State != StateRejected {
		t.Fatalf("expected rejected, got %s", got.State)
	}
}

func TestEnd_FromAcceptedAndIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c := newRingingCall(t, s, "c1", "alice", "bob")
	if _, ok, _ := s.Accept(ctx, c.ID); !ok {
		t.Fatalf("accept failed")
	}
	if _, ok, err := s.End(ctx, c.ID); err != nil || !ok {
		t.Fatalf("end: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.End(ctx, c.ID); err != nil || ok {
		t.Fatalf("repeat end should no-op, got ok=%v err=%v", ok, err)
	}
}

func TestTerminalTransitionFreesBothParticipants(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c := newRingingCall(t, s, "c1", "alice", "bob")
	if _, ok, _ := s.Miss(ctx, c.ID); !ok {
		t.Fatalf("miss failed")
	}

	// Both sides can be called again.
	if err := s.Create(ctx, Call{ID: "c2", CallerID: "alice", CalleeID: "bob", Type: TypeAudio}); err != nil {
		t.Fatalf("expected new call after terminal transition, got %v", err)
	}
}

func TestMissVsAcceptRace_ExactlyOneEffective(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c := newRingingCall(t, s, "c1", "alice", "bob")

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, ok, _ := s.Accept(ctx, c.ID)
		results[0] = ok
	}()
	go func() {
		defer wg.Done()
		_, ok, _ := s.Miss(ctx, c.ID)
		results[1] = ok
	}()
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("expected exactly one of accept/miss to win, got accept=%v miss=%v", results[0], results[1])
	}
}

func TestTransitionOnUnknownCallReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, _, err := s.Accept(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateRejected, StateEnded, StateMissed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateRinging, StateAccepted} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestOtherParticipant(t *testing.T) {
	c := Call{CallerID: "alice", CalleeID: "bob"}
	if c.OtherParticipant("alice") != "bob" || c.OtherParticipant("bob") != "alice" {
		t.Fatalf("unexpected counterpart mapping")
	}
	if c.OtherParticipant("carol") != "" {
		t.Fatalf("non-participant should map to empty")
	}
}

func TestRedisScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if createScript == nil || transitionScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestMemoryStoreClockIsUsed(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Unix(1700000000, 0).UTC()
	s.Clock = func() time.Time { return fixed }

	c := newRingingCall(t, s, "c1", "alice", "bob")
	if !c.CreatedAt.Equal(fixed) || !c.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected injected clock timestamps, got %+v", c)
	}
}
