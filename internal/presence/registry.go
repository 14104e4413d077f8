package presence

import (
	"context"
	"errors"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Registry is the shared session/presence store.
//
// It is the single source of truth for who is online and which connections
// they hold; every server process reads and writes the same registry.
// Correctness-sensitive decisions (busy checks, delivery targeting) must
// consult the registry, never a process-local mirror.
//
// All operations are safe to retry: registering an already-registered
// connection refreshes its TTLs and succeeds, unregistering an unknown
// connection is a no-op.
type Registry interface {
	// RegisterConnection upserts the session record, adds the connection to
	// the user's connection set and marks presence online.
	RegisterConnection(ctx context.Context, s Session) error

	// UnregisterConnection removes one connection. When it was the user's
	// last connection, presence flips to offline. The push credential
	// survives unless opts.DeletePushToken is set (explicit logout).
	// Returns the user the connection belonged to ("" if unknown).
	UnregisterConnection(ctx context.Context, connectionID string, opts UnregisterOptions) (string, error)

	// RefreshLiveness extends the TTLs of all session/presence records for
	// the user. Called on every liveness signal.
	RefreshLiveness(ctx context.Context, userID string) error

	IsOnline(ctx context.Context, userID string) (bool, error)

	// Connections returns the ids of the user's live connections across all
	// server processes.
	Connections(ctx context.Context, userID string) ([]string, error)

	Presence(ctx context.Context, userID string) (Presence, bool, error)

	// SetPushToken stores the user's push credential. Empty token is a no-op.
	SetPushToken(ctx context.Context, userID, token string) error

	// PushToken returns the stored push credential, if any.
	PushToken(ctx context.Context, userID string) (string, bool, error)
}
