package history

import "time"

// Entry is one archived call, written once the call reaches a terminal
// state. Outcome keeps the missed/rejected/ended distinction so clients can
// render call history correctly.
type Entry struct {
	CallID   string `json:"call_id" db:"call_id"`
	CallerID string `json:"caller_id" db:"caller_id"`
	CalleeID string `json:"callee_id" db:"callee_id"`
	CallType string `json:"call_type" db:"call_type"`
	Outcome  string `json:"outcome" db:"outcome"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`

	// DurationSeconds is wall time from initiation to the terminal
	// transition. Keep as an int for JSON friendliness; store as INT.
	DurationSeconds int `json:"duration" db:"duration"`
}
