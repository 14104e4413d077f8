package ws

import (
	"encoding/json"
	"time"
)

// Client message types. Server-to-client event names live in the signaling
// package; the wire shape is the same envelope in both directions.
const (
	TypeRegister   = "register"
	TypeUnregister = "unregister"
	TypePing       = "ping"
	TypeAck        = "ack"

	TypeCallInitiate = "call_initiate"
	TypeCallAccept   = "call_accept"
	TypeCallReject   = "call_reject"
	TypeCallEnd      = "call_end"
	TypeSDPOffer     = "sdp_offer"
	TypeSDPAnswer    = "sdp_answer"
	TypeICECandidate = "ice_candidate"

	TypeError = "error"
	TypePong  = "pong"
)

// Envelope is one client-to-server frame. ID is chosen by the client and
// echoed on the reply so the client can correlate request and response.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outFrame is one server-to-client frame. For replies ID echoes the request
// id; for pushed events ID is the event id the client acks with.
type outFrame struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type registerPayload struct {
	Platform  string `json:"platform,omitempty"`
	PushToken string `json:"push_token,omitempty"`
}

type registerReply struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

type ackPayload struct {
	ID string `json:"id"`
}

type pingPayload struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

type pongReply struct {
	Timestamp  int64  `json:"timestamp,omitempty"`
	ServerTime string `json:"server_time"`
}

type callActionPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type sdpPayload struct {
	CallID string          `json:"call_id"`
	To     string          `json:"to"`
	SDP    json.RawMessage `json:"sdp,omitempty"`
}

type icePayload struct {
	CallID    string          `json:"call_id"`
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
