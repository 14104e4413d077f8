package call

import "time"

// Type is the negotiated media kind. Signaling never touches media bytes;
// the type only rides along so clients can render the right UI.
type Type string

const (
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
)

func (t Type) Valid() bool {
	return t == TypeAudio || t == TypeVideo
}

// State is the lifecycle state of a call.
// Keep values stable because they are part of the public API.
//
// Transitions:
//
//	ringing  -> accepted | rejected | ended | missed
//	accepted -> ended
//
// rejected, ended and missed are terminal. missed is distinct from ended so
// call history can tell an unanswered call apart from a completed one.
type State string

const (
	StateRinging  State = "ringing"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
	StateEnded    State = "ended"
	StateMissed   State = "missed"
)

func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateEnded, StateMissed:
		return true
	default:
		return false
	}
}

// Call is one attempted or established session between exactly two users.
//
// Busy invariant: at most one non-terminal call may exist per user at any
// time, enforced atomically by the store at creation.
type Call struct {
	ID       string `json:"call_id"`
	CallerID string `json:"caller_id"`
	CalleeID string `json:"callee_id"`
	Type     Type   `json:"call_type"`
	State    State  `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Call) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.CallerID || userID == c.CalleeID)
}

// OtherParticipant returns the counterpart of userID, or "" if userID is not
// a participant.
func (c Call) OtherParticipant(userID string) string {
	switch userID {
	case c.CallerID:
		return c.CalleeID
	case c.CalleeID:
		return c.CallerID
	default:
		return ""
	}
}
