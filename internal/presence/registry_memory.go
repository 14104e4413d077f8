package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is a process-local Registry useful for tests and early
// development. It mirrors the Redis registry's semantics (multi-device
// connection sets, push-token preservation) without TTL expiry.
//
// NOTE: Not for production; multiple processes must share one registry.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]Session             // connectionID -> session
	byUser   map[string]map[string]struct{} // userID -> connection ids
	presence map[string]Presence
	push     map[string]string

	Clock func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]Session),
		byUser:   make(map[string]map[string]struct{}),
		presence: make(map[string]Presence),
		push:     make(map[string]string),
		Clock:    time.Now,
	}
}

func (r *MemoryRegistry) RegisterConnection(_ context.Context, s Session) error {
	if s.UserID == "" || s.ConnectionID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.RegisteredAt.IsZero() {
		s.RegisteredAt = r.Clock().UTC()
	}
	r.sessions[s.ConnectionID] = s
	if r.byUser[s.UserID] == nil {
		r.byUser[s.UserID] = make(map[string]struct{})
	}
	r.byUser[s.UserID][s.ConnectionID] = struct{}{}
	r.presence[s.UserID] = Presence{UserID: s.UserID, Status: StatusOnline, LastSeen: r.Clock().UTC()}
	return nil
}

func (r *MemoryRegistry) UnregisterConnection(_ context.Context, connectionID string, opts UnregisterOptions) (string, error) {
	if connectionID == "" {
		return "", ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return "", nil
	}
	delete(r.sessions, connectionID)
	if set := r.byUser[s.UserID]; set != nil {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(r.byUser, s.UserID)
			r.presence[s.UserID] = Presence{UserID: s.UserID, Status: StatusOffline, LastSeen: r.Clock().UTC()}
		}
	}
	if opts.DeletePushToken {
		delete(r.push, s.UserID)
	}
	return s.UserID, nil
}

func (r *MemoryRegistry) RefreshLiveness(_ context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence[userID] = Presence{UserID: userID, Status: StatusOnline, LastSeen: r.Clock().UTC()}
	return nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID]) > 0, nil
}

func (r *MemoryRegistry) Connections(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byUser[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

func (r *MemoryRegistry) Presence(_ context.Context, userID string) (Presence, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presence[userID]
	return p, ok, nil
}

func (r *MemoryRegistry) SetPushToken(_ context.Context, userID, token string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	if token == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push[userID] = token
	return nil
}

func (r *MemoryRegistry) PushToken(_ context.Context, userID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.push[userID]
	return tok, ok, nil
}
