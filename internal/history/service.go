package history

import (
	"context"
	"log/slog"

	"signaling-platform/internal/call"
)

// Service archives terminal calls.
//
// Archiving is best-effort: a failed archive is logged and never fails the
// signaling operation that triggered it.
type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log}
}

// Archive records a call that reached a terminal state.
func (s *Service) Archive(ctx context.Context, c call.Call) {
	if !c.State.Terminal() {
		return
	}
	dur := 0
	if c.UpdatedAt.After(c.CreatedAt) {
		dur = int(c.UpdatedAt.Sub(c.CreatedAt).Seconds())
	}
	e := Entry{
		CallID:          c.ID,
		CallerID:        c.CallerID,
		CalleeID:        c.CalleeID,
		CallType:        string(c.Type),
		Outcome:         string(c.State),
		StartedAt:       c.CreatedAt,
		EndedAt:         c.UpdatedAt,
		DurationSeconds: dur,
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		s.log.Error("call history archive failed", "call_id", c.ID, "err", err)
	}
}

// ListForUser returns the user's archived calls, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}
