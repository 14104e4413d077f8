package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early
// development.
//
// NOTE: This is not intended for production; replace with the Postgres
// implementation.
type MemoryRepo struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entries: make(map[string]Entry)}
}

func (r *MemoryRepo) Insert(_ context.Context, e Entry) error {
	if e.CallID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.CallID]; ok {
		return nil
	}
	r.entries[e.CallID] = e
	return nil
}

func (r *MemoryRepo) ListForUser(_ context.Context, userID string, limit int) ([]Entry, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.entries {
		if e.CallerID == userID || e.CalleeID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
