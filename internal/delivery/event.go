package delivery

import "time"

// Event is one server-to-client notification.
//
// ID doubles as the acknowledgment correlation token: a client acks an
// event by echoing its id, on whichever process its socket happens to live.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is the minimal surface the delivery layer needs from a live
// connection. Implemented by the websocket client.
type Conn interface {
	ID() string
	UserID() string
	SendEvent(ev Event) error
}

// Result reports what happened to one Notify call.
//
// Delivered=false with Reason "no_connections" is the common, expected path
// when the target is offline; callers decide whether to fall back to push.
type Result struct {
	Delivered       bool   `json:"delivered"`
	Acked           bool   `json:"acked"`
	ConnectionCount int    `json:"connection_count"`
	Reason          string `json:"reason,omitempty"`
}

const (
	ReasonNoConnections = "no_connections"
	ReasonAckTimeout    = "ack_timeout"
)

// Options controls acknowledgment behavior for one Notify call.
type Options struct {
	RequireAck bool
	AckTimeout time.Duration
}
