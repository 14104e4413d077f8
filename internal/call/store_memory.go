package call

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store useful for tests and early
// development. It mirrors the Redis store's atomicity (one mutex guards the
// busy check and every state transition).
//
// NOTE: Not for production; multiple processes must share one store.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
	busy  map[string]string // userID -> callID of non-terminal call

	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls: make(map[string]Call),
		busy:  make(map[string]string),
		Clock: time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, c Call) error {
	if c.ID == "" || c.CallerID == "" || c.CalleeID == "" || c.CallerID == c.CalleeID || !c.Type.Valid() {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.busy[c.CallerID]; ok {
		return ErrBusy
	}
	if _, ok := s.busy[c.CalleeID]; ok {
		return ErrBusy
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Clock().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	c.State = StateRinging

	s.calls[c.ID] = c
	s.busy[c.CallerID] = c.ID
	s.busy[c.CalleeID] = c.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Accept(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(callID, StateAccepted, StateRinging)
}

func (s *MemoryStore) Reject(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(callID, StateRejected, StateRinging)
}

func (s *MemoryStore) End(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(callID, StateEnded, StateRinging, StateAccepted)
}

func (s *MemoryStore) Miss(ctx context.Context, callID string) (Call, bool, error) {
	return s.transition(callID, StateMissed, StateRinging)
}

func (s *MemoryStore) transition(callID string, to State, from ...State) (Call, bool, error) {
	if callID == "" {
		return Call{}, false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return Call{}, false, ErrNotFound
	}

	allowed := false
	for _, f := range from {
		if c.State == f {
			allowed = true
		}
	}
	if !allowed {
		return Call{}, false, nil
	}

	c.State = to
	c.UpdatedAt = s.Clock().UTC()
	s.calls[callID] = c

	if to.Terminal() {
		delete(s.busy, c.CallerID)
		delete(s.busy, c.CalleeID)
	}
	return c, true, nil
}
