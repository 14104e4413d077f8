package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Repository persists archived calls.
type Repository interface {
	// Insert stores an entry. Inserting the same call_id twice is a no-op:
	// a timeout and a hang-up racing to archive must not duplicate rows.
	Insert(ctx context.Context, e Entry) error

	// ListForUser returns the newest entries where userID was either
	// participant, newest first.
	ListForUser(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// PostgresRepo is the production Repository.
//
// Schema:
//
//	CREATE TABLE call_history (
//	  call_id    TEXT PRIMARY KEY,
//	  caller_id  TEXT NOT NULL,
//	  callee_id  TEXT NOT NULL,
//	  call_type  TEXT NOT NULL,
//	  outcome    TEXT NOT NULL,
//	  started_at TIMESTAMPTZ NOT NULL,
//	  ended_at   TIMESTAMPTZ NOT NULL,
//	  duration   INT NOT NULL DEFAULT 0
//	);
//	CREATE INDEX call_history_caller_idx ON call_history (caller_id, ended_at DESC);
//	CREATE INDEX call_history_callee_idx ON call_history (callee_id, ended_at DESC);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, e Entry) error {
	if e.CallID == "" {
		return ErrInvalidArgument
	}
	const q = `
		INSERT INTO call_history (call_id, caller_id, callee_id, call_type, outcome, started_at, ended_at, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (call_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q,
		e.CallID, e.CallerID, e.CalleeID, e.CallType, e.Outcome,
		e.StartedAt, e.EndedAt, e.DurationSeconds,
	); err != nil {
		return fmt.Errorf("insert call history: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
		SELECT call_id, caller_id, callee_id, call_type, outcome, started_at, ended_at, duration
		FROM call_history
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CallID, &e.CallerID, &e.CalleeID, &e.CallType, &e.Outcome,
			&e.StartedAt, &e.EndedAt, &e.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan call history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
