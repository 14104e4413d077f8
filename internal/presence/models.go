package presence

import "time"

// Session binds one live connection to a user identity.
// A connection maps to exactly one user; a user may hold several
// connections at once (multi-device).
type Session struct {
	UserID       string    `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	DeviceID     string    `json:"device_id,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Presence is the TTL-bounded online signal for a user, independent of any
// one connection. Absence of liveness refreshes past the TTL implies
// offline without an explicit disconnect.
type Presence struct {
	UserID   string    `json:"user_id"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// UnregisterOptions controls teardown side effects.
//
// DeletePushToken must be true only for explicit logout. A plain disconnect
// (app killed, network drop) keeps the push credential so the user can still
// be reached for an incoming call.
type UnregisterOptions struct {
	DeletePushToken bool
}
