package signaling

import "encoding/json"

// Server-to-client event names. Each event carries call_id plus the
// relevant data; the delivery layer stamps id and timestamp.
const (
	EventIncomingCall = "incoming_call"
	EventCallAccept   = "call_accept"
	EventCallReject   = "call_reject"
	EventCallEnd      = "call_end"
	EventCallTimeout  = "call_timeout"
	EventSDPOffer     = "sdp_offer"
	EventSDPAnswer    = "sdp_answer"
	EventICECandidate = "ice_candidate"
)

type IncomingCallEvent struct {
	CallID       string `json:"call_id"`
	CallerID     string `json:"caller_id"`
	CallType     string `json:"call_type"`
	CallerName   string `json:"caller_name,omitempty"`
	CallerAvatar string `json:"caller_avatar,omitempty"`
}

type CallAcceptEvent struct {
	CallID string `json:"call_id"`
}

type CallRejectEvent struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type CallEndEvent struct {
	CallID string `json:"call_id"`
	By     string `json:"by"`
}

type CallTimeoutEvent struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

// SDPEvent relays a session description verbatim; the signaling layer never
// inspects the SDP body.
type SDPEvent struct {
	CallID string          `json:"call_id"`
	From   string          `json:"from"`
	SDP    json.RawMessage `json:"sdp"`
}

// ICECandidateEvent relays an ICE candidate verbatim.
type ICECandidateEvent struct {
	CallID    string          `json:"call_id"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}
