package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/delivery"
	"signaling-platform/internal/presence"
	"signaling-platform/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from app origins; auth happens via JWT, not
	// the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler owns the websocket endpoint: upgrade, auth, the per-connection
// read loop and dispatch into the signaling router.
type Handler struct {
	auth     *auth.Manager
	router   *signaling.Router
	registry presence.Registry
	hub      *delivery.Hub
	notifier *delivery.Notifier
	log      *slog.Logger

	clock func() time.Time
}

func NewHandler(am *auth.Manager, router *signaling.Router, registry presence.Registry, hub *delivery.Hub, notifier *delivery.Notifier, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		auth:     am,
		router:   router,
		registry: registry,
		hub:      hub,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
}

// Serve upgrades the request and runs the connection until the client
// disconnects. The JWT travels in the query string because browser
// websocket clients cannot set headers.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := h.auth.Verify(token, h.clock())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Warn("websocket upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}

	conn := newConn(sock, claims.UserID, claims.DeviceID)
	h.hub.Add(conn)
	h.log.Info("websocket connected", "user_id", conn.UserID(), "conn_id", conn.ID())

	go conn.writePump()
	h.readLoop(c.Request.Context(), conn)
	h.teardown(conn)
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	conn.sock.SetReadLimit(maxMessageSize)
	conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	conn.sock.SetPongHandler(func(string) error {
		conn.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", "conn_id", conn.ID(), "err", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.replyError(conn, "", signaling.NewError(signaling.CodeInvalidPayload, "malformed frame"))
			continue
		}
		h.dispatch(ctx, conn, env)
	}
}

// teardown runs once the read loop exits, however it exits. The push token
// survives a plain disconnect so the user stays reachable for calls.
func (h *Handler) teardown(conn *Conn) {
	conn.close()
	h.hub.Remove(conn.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	userID, err := h.registry.UnregisterConnection(ctx, conn.ID(), presence.UnregisterOptions{})
	if err != nil {
		h.log.Warn("unregister on disconnect failed", "conn_id", conn.ID(), "err", err)
		return
	}
	h.log.Info("websocket disconnected", "user_id", userID, "conn_id", conn.ID())
}

func (h *Handler) dispatch(ctx context.Context, conn *Conn, env Envelope) {
	switch env.Type {
	case TypeRegister:
		h.handleRegister(ctx, conn, env)
	case TypeUnregister:
		h.handleUnregister(ctx, conn, env)
	case TypePing:
		h.handlePing(ctx, conn, env)
	case TypeAck:
		h.handleAck(ctx, conn, env)
	case TypeCallInitiate:
		h.handleInitiate(ctx, conn, env)
	case TypeCallAccept:
		h.handleCallAction(ctx, conn, env, h.acceptAction)
	case TypeCallReject:
		h.handleCallAction(ctx, conn, env, h.rejectAction)
	case TypeCallEnd:
		h.handleCallAction(ctx, conn, env, h.endAction)
	case TypeSDPOffer:
		h.handleSDP(ctx, conn, env, h.router.RelaySDPOffer)
	case TypeSDPAnswer:
		h.handleSDP(ctx, conn, env, h.router.RelaySDPAnswer)
	case TypeICECandidate:
		h.handleICE(ctx, conn, env)
	default:
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeInvalidPayload, "unknown message type: "+env.Type))
	}
}

func (h *Handler) handleRegister(ctx context.Context, conn *Conn, env Envelope) {
	var p registerPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.replyError(conn, env.ID, signaling.NewError(signaling.CodeInvalidPayload, "malformed register payload"))
			return
		}
	}

	s := presence.Session{
		UserID:       conn.UserID(),
		ConnectionID: conn.ID(),
		DeviceID:     conn.deviceID,
		Platform:     p.Platform,
		RegisteredAt: h.clock(),
	}
	if err := h.registry.RegisterConnection(ctx, s); err != nil {
		h.log.Error("register failed", "user_id", conn.UserID(), "err", err)
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeRegistrationFailed, "could not register session"))
		return
	}
	if p.PushToken != "" {
		if err := h.registry.SetPushToken(ctx, conn.UserID(), p.PushToken); err != nil {
			h.log.Warn("push token store failed", "user_id", conn.UserID(), "err", err)
		}
	}

	h.reply(conn, env.ID, env.Type, registerReply{Success: true, SessionID: conn.ID()})
}

// handleUnregister is the explicit logout path: the push token goes too, so
// the device stops receiving call pushes.
func (h *Handler) handleUnregister(ctx context.Context, conn *Conn, env Envelope) {
	if _, err := h.registry.UnregisterConnection(ctx, conn.ID(), presence.UnregisterOptions{DeletePushToken: true}); err != nil {
		h.log.Error("unregister failed", "user_id", conn.UserID(), "err", err)
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeRegistrationFailed, "could not unregister session"))
		return
	}
	h.reply(conn, env.ID, env.Type, gin.H{"success": true})
}

func (h *Handler) handlePing(ctx context.Context, conn *Conn, env Envelope) {
	var p pingPayload
	if len(env.Payload) > 0 {
		json.Unmarshal(env.Payload, &p)
	}
	if err := h.registry.RefreshLiveness(ctx, conn.UserID()); err != nil {
		h.log.Warn("liveness refresh failed", "user_id", conn.UserID(), "err", err)
	}
	h.reply(conn, env.ID, TypePong, pongReply{
		Timestamp:  p.Timestamp,
		ServerTime: h.clock().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleAck(ctx context.Context, conn *Conn, env Envelope) {
	var p ackPayload
	if len(env.Payload) > 0 {
		json.Unmarshal(env.Payload, &p)
	}
	eventID := p.ID
	if eventID == "" {
		eventID = env.ID
	}
	if eventID == "" {
		return
	}
	h.notifier.Ack(ctx, eventID)
}

func (h *Handler) handleInitiate(ctx context.Context, conn *Conn, env Envelope) {
	var req signaling.InitiateRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeInvalidPayload, "malformed initiate payload"))
		return
	}
	res, err := h.router.Initiate(ctx, conn.UserID(), req)
	if err != nil {
		h.replyError(conn, env.ID, err)
		return
	}
	h.reply(conn, env.ID, env.Type, res)
}

type callAction func(ctx context.Context, userID string, p callActionPayload) (signaling.CallResult, error)

func (h *Handler) acceptAction(ctx context.Context, userID string, p callActionPayload) (signaling.CallResult, error) {
	return h.router.Accept(ctx, userID, p.CallID)
}

func (h *Handler) rejectAction(ctx context.Context, userID string, p callActionPayload) (signaling.CallResult, error) {
	return h.router.Reject(ctx, userID, p.CallID, p.Reason)
}

func (h *Handler) endAction(ctx context.Context, userID string, p callActionPayload) (signaling.CallResult, error) {
	return h.router.End(ctx, userID, p.CallID)
}

func (h *Handler) handleCallAction(ctx context.Context, conn *Conn, env Envelope, action callAction) {
	var p callActionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeInvalidPayload, "malformed payload"))
		return
	}
	res, err := action(ctx, conn.UserID(), p)
	if err != nil {
		h.replyError(conn, env.ID, err)
		return
	}
	h.reply(conn, env.ID, env.Type, res)
}

func (h *Handler) handleSDP(ctx context.Context, conn *Conn, env Envelope, relay func(context.Context, string, signaling.RelayRequest) error) {
	var p sdpPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeInvalidPayload, "malformed payload"))
		return
	}
	req := signaling.RelayRequest{CallID: p.CallID, To: p.To, Payload: p.SDP}
	if err := relay(ctx, conn.UserID(), req); err != nil {
		h.replyError(conn, env.ID, err)
		return
	}
	h.reply(conn, env.ID, env.Type, gin.H{"success": true})
}

func (h *Handler) handleICE(ctx context.Context, conn *Conn, env Envelope) {
	var p icePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.replyError(conn, env.ID, signaling.NewError(signaling.CodeInvalidPayload, "malformed payload"))
		return
	}
	req := signaling.RelayRequest{CallID: p.CallID, To: p.To, Payload: p.Candidate}
	if err := h.router.RelayICECandidate(ctx, conn.UserID(), req); err != nil {
		h.replyError(conn, env.ID, err)
		return
	}
	// Candidates are fire-and-forget; no success frame per candidate.
}

func (h *Handler) reply(conn *Conn, id, typ string, payload any) {
	data, err := json.Marshal(outFrame{ID: id, Type: typ, Payload: payload, Timestamp: h.clock()})
	if err != nil {
		h.log.Error("reply marshal failed", "type", typ, "err", err)
		return
	}
	if err := conn.enqueue(data); err != nil {
		h.log.Warn("reply dropped", "type", typ, "conn_id", conn.ID(), "err", err)
	}
}

func (h *Handler) replyError(conn *Conn, id string, err error) {
	se, ok := signaling.AsError(err)
	if !ok {
		se = signaling.NewError(signaling.CodeCallSetupFailed, "internal error")
	}
	h.reply(conn, id, TypeError, errorPayload{Code: string(se.Code), Message: se.Message})
}
