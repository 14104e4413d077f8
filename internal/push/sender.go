package push

import "context"

// IncomingCall is the payload of the incoming-call push notification.
// Sent data-only so the client's background handler can raise the native
// call UI even when the app is killed.
type IncomingCall struct {
	CallID       string
	CallerID     string
	CallType     string
	CallerName   string
	CallerAvatar string
}

// Sender delivers the incoming-call push to a device token.
//
// Best-effort by contract: failures are logged by callers, never surfaced
// to the user triggering the push, and never block the signaling response.
type Sender interface {
	SendIncomingCall(ctx context.Context, token string, call IncomingCall) error
}

// Noop discards all pushes. Used in tests and when push is not configured.
type Noop struct{}

func (Noop) SendIncomingCall(context.Context, string, IncomingCall) error { return nil }
