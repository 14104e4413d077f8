package call

import (
	"context"
	"errors"
)

var (
	// ErrBusy means the caller or callee already holds a non-terminal call.
	ErrBusy = errors.New("participant busy")

	ErrNotFound        = errors.New("call not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store is the authoritative record of in-flight calls, shared by all
// server processes.
//
// Every mutation is a single atomic operation keyed by the expected prior
// state; callers must never read-then-write in two steps. A transition that
// returns ok=false lost a race (the state already changed), which is an
// expected outcome, not an error.
type Store interface {
	// Create inserts the call in ringing state iff neither participant has
	// a non-terminal call. The busy check and the insert are one atomic
	// operation, so two users dialing each other in the same instant cannot
	// both succeed. Returns ErrBusy when either side is occupied.
	Create(ctx context.Context, c Call) error

	Get(ctx context.Context, callID string) (Call, error)

	// Accept transitions ringing -> accepted.
	Accept(ctx context.Context, callID string) (Call, bool, error)

	// Reject transitions ringing -> rejected (terminal).
	Reject(ctx context.Context, callID string) (Call, bool, error)

	// End transitions ringing or accepted -> ended (terminal).
	End(ctx context.Context, callID string) (Call, bool, error)

	// Miss transitions ringing -> missed (terminal). Used by the ringing
	// timeout and by a caller hanging up before the callee answers.
	Miss(ctx context.Context, callID string) (Call, bool, error)
}
