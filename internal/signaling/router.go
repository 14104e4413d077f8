package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"signaling-platform/internal/call"
	"signaling-platform/internal/delivery"
	"signaling-platform/internal/history"
	"signaling-platform/internal/presence"
	"signaling-platform/internal/push"

	"github.com/google/uuid"
)

// Notifier is the slice of the delivery layer the router depends on.
type Notifier interface {
	Notify(ctx context.Context, userID, name string, payload any, opts delivery.Options) (delivery.Result, error)
}

// Config tunes router timing.
type Config struct {
	RingingTimeout time.Duration
	AckTimeout     time.Duration
}

// Router validates, authorizes and orchestrates every signaling operation.
// It is the only component with side effects visible to both participants.
//
// Validation order is fixed: payload shape, then call lookup, then
// participant authorization, then state. A malformed payload never leaks
// call existence and an unauthorized caller never learns the call's state.
type Router struct {
	store    call.Store
	registry presence.Registry
	notifier Notifier
	pusher   push.Sender
	archive  *history.Service
	timeouts *call.TimeoutManager
	log      *slog.Logger
	cfg      Config

	newID func() string
}

func NewRouter(store call.Store, registry presence.Registry, notifier Notifier, pusher push.Sender, archive *history.Service, cfg Config, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	if pusher == nil {
		pusher = push.Noop{}
	}
	r := &Router{
		store:    store,
		registry: registry,
		notifier: notifier,
		pusher:   pusher,
		archive:  archive,
		log:      log,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
	r.timeouts = call.NewTimeoutManager(cfg.RingingTimeout, r.handleRingingExpiry)
	return r
}

// Timeouts exposes the timer manager for shutdown wiring.
func (r *Router) Timeouts() *call.TimeoutManager { return r.timeouts }

type InitiateRequest struct {
	CalleeID     string `json:"callee_id"`
	CallType     string `json:"call_type"`
	CallerName   string `json:"caller_name,omitempty"`
	CallerAvatar string `json:"caller_avatar,omitempty"`
}

type CallResult struct {
	CallID string `json:"call_id"`
	State  string `json:"state"`
}

// Initiate creates a ringing call, starts its timeout and notifies the
// callee. The push fallback fires whenever no socket acknowledged in time;
// the response to the caller never waits on push delivery.
func (r *Router) Initiate(ctx context.Context, callerID string, req InitiateRequest) (CallResult, error) {
	if req.CalleeID == "" {
		return CallResult{}, NewError(CodeMissingField, "callee_id is required")
	}
	if req.CallType == "" {
		return CallResult{}, NewError(CodeMissingField, "call_type is required")
	}
	if req.CalleeID == callerID {
		return CallResult{}, NewError(CodeInvalidPayload, "cannot call yourself")
	}
	callType := call.Type(req.CallType)
	if !callType.Valid() {
		return CallResult{}, NewError(CodeInvalidPayload, "call_type must be audio or video")
	}

	c := call.Call{
		ID:       r.newID(),
		CallerID: callerID,
		CalleeID: req.CalleeID,
		Type:     callType,
		State:    call.StateRinging,
	}
	if err := r.store.Create(ctx, c); err != nil {
		switch {
		case errors.Is(err, call.ErrBusy):
			return CallResult{}, NewError(CodeCalleeBusy, "participant already in a call")
		case errors.Is(err, call.ErrInvalidArgument):
			return CallResult{}, NewError(CodeInvalidPayload, "invalid call parameters")
		default:
			r.log.Error("call create failed", "caller_id", callerID, "err", err)
			return CallResult{}, NewError(CodeCallSetupFailed, "could not set up call")
		}
	}

	r.timeouts.Start(c.ID)

	ev := IncomingCallEvent{
		CallID:       c.ID,
		CallerID:     callerID,
		CallType:     req.CallType,
		CallerName:   req.CallerName,
		CallerAvatar: req.CallerAvatar,
	}
	res, err := r.notifier.Notify(ctx, req.CalleeID, EventIncomingCall, ev, delivery.Options{
		RequireAck: true,
		AckTimeout: r.cfg.AckTimeout,
	})
	if err != nil {
		r.log.Warn("incoming call notify failed", "call_id", c.ID, "err", err)
		res = delivery.Result{}
	}
	if !res.Acked {
		r.sendCallPush(ctx, c, req)
	}

	return CallResult{CallID: c.ID, State: string(call.StateRinging)}, nil
}

// Accept lets the callee pick up a ringing call.
func (r *Router) Accept(ctx context.Context, userID, callID string) (CallResult, error) {
	if callID == "" {
		return CallResult{}, NewError(CodeMissingField, "call_id is required")
	}
	c, err := r.getCall(ctx, callID)
	if err != nil {
		return CallResult{}, err
	}
	if userID != c.CalleeID {
		return CallResult{}, NewError(CodeUnauthorized, "only the callee can accept")
	}

	r.timeouts.Clear(callID)
	updated, ok, err := r.store.Accept(ctx, callID)
	if err != nil && !errors.Is(err, call.ErrNotFound) {
		r.log.Error("accept transition failed", "call_id", callID, "err", err)
		return CallResult{}, NewError(CodeCallSetupFailed, "could not accept call")
	}
	if err != nil || !ok {
		// Lost the race: caller canceled or the timeout fired first.
		return CallResult{}, NewError(CodeInvalidCallState, "call is no longer ringing")
	}

	r.notifyBestEffort(ctx, c.CallerID, EventCallAccept, CallAcceptEvent{CallID: callID})
	return CallResult{CallID: callID, State: string(updated.State)}, nil
}

// Reject lets the callee decline a ringing call.
func (r *Router) Reject(ctx context.Context, userID, callID, reason string) (CallResult, error) {
	if callID == "" {
		return CallResult{}, NewError(CodeMissingField, "call_id is required")
	}
	c, err := r.getCall(ctx, callID)
	if err != nil {
		return CallResult{}, err
	}
	if userID != c.CalleeID {
		return CallResult{}, NewError(CodeUnauthorized, "only the callee can reject")
	}

	r.timeouts.Clear(callID)
	updated, ok, err := r.store.Reject(ctx, callID)
	if err != nil && !errors.Is(err, call.ErrNotFound) {
		r.log.Error("reject transition failed", "call_id", callID, "err", err)
		return CallResult{}, NewError(CodeCallSetupFailed, "could not reject call")
	}
	if err != nil || !ok {
		return CallResult{}, NewError(CodeInvalidCallState, "call is no longer ringing")
	}

	r.notifyBestEffort(ctx, c.CallerID, EventCallReject, CallRejectEvent{CallID: callID, Reason: reason})
	r.archiveCall(ctx, updated)
	return CallResult{CallID: callID, State: string(updated.State)}, nil
}

// End hangs up a non-terminal call. Idempotent: ending an already-gone or
// already-terminal call succeeds without side effects.
//
// A caller hanging up while the call still rings lands it in missed rather
// than ended, so the callee's history shows the unanswered attempt.
func (r *Router) End(ctx context.Context, userID, callID string) (CallResult, error) {
	if callID == "" {
		return CallResult{}, NewError(CodeMissingField, "call_id is required")
	}
	c, err := r.store.Get(ctx, callID)
	if errors.Is(err, call.ErrNotFound) {
		return CallResult{CallID: callID, State: string(call.StateEnded)}, nil
	}
	if err != nil {
		r.log.Error("end lookup failed", "call_id", callID, "err", err)
		return CallResult{}, NewError(CodeCallSetupFailed, "could not end call")
	}
	if !c.HasParticipant(userID) {
		return CallResult{}, NewError(CodeUnauthorized, "not a participant of this call")
	}

	r.timeouts.Clear(callID)

	var updated call.Call
	var ok bool
	if c.State == call.StateRinging && userID == c.CallerID {
		updated, ok, err = r.store.Miss(ctx, callID)
	} else {
		updated, ok, err = r.store.End(ctx, callID)
	}
	if err != nil && !errors.Is(err, call.ErrNotFound) {
		r.log.Error("end transition failed", "call_id", callID, "err", err)
		return CallResult{}, NewError(CodeCallSetupFailed, "could not end call")
	}
	if err != nil || !ok {
		// Already terminal; repeated hang-up is success.
		return CallResult{CallID: callID, State: string(c.State)}, nil
	}

	r.notifyBestEffort(ctx, c.OtherParticipant(userID), EventCallEnd, CallEndEvent{CallID: callID, By: userID})
	r.archiveCall(ctx, updated)
	return CallResult{CallID: callID, State: string(updated.State)}, nil
}

type RelayRequest struct {
	CallID  string          `json:"call_id"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"-"`
}

// RelaySDPOffer forwards a session description to the counterpart. The
// counterpart being unreachable is fatal to call setup.
func (r *Router) RelaySDPOffer(ctx context.Context, from string, req RelayRequest) error {
	return r.relaySDP(ctx, from, req, EventSDPOffer)
}

// RelaySDPAnswer forwards the answering session description.
func (r *Router) RelaySDPAnswer(ctx context.Context, from string, req RelayRequest) error {
	return r.relaySDP(ctx, from, req, EventSDPAnswer)
}

func (r *Router) relaySDP(ctx context.Context, from string, req RelayRequest, event string) error {
	if _, err := r.validateRelay(ctx, from, req, "sdp"); err != nil {
		return err
	}

	res, err := r.notifier.Notify(ctx, req.To, event, SDPEvent{CallID: req.CallID, From: from, SDP: req.Payload}, delivery.Options{})
	if err != nil {
		r.log.Error("sdp relay failed", "call_id", req.CallID, "err", err)
		return NewError(CodeCalleeNotAvailable, "counterpart unreachable")
	}
	if !res.Delivered {
		return NewError(CodeCalleeNotAvailable, "counterpart unreachable")
	}
	return nil
}

// RelayICECandidate forwards an ICE candidate. Candidates are numerous and
// best-effort: validation failures surface, delivery failures only log.
func (r *Router) RelayICECandidate(ctx context.Context, from string, req RelayRequest) error {
	if _, err := r.validateRelay(ctx, from, req, "candidate"); err != nil {
		return err
	}

	res, err := r.notifier.Notify(ctx, req.To, EventICECandidate, ICECandidateEvent{CallID: req.CallID, From: from, Candidate: req.Payload}, delivery.Options{})
	if err != nil || !res.Delivered {
		r.log.Debug("ice candidate not delivered", "call_id", req.CallID, "to", req.To, "reason", res.Reason, "err", err)
	}
	return nil
}

func (r *Router) validateRelay(ctx context.Context, from string, req RelayRequest, payloadField string) (call.Call, error) {
	if req.CallID == "" {
		return call.Call{}, NewError(CodeMissingField, "call_id is required")
	}
	if req.To == "" {
		return call.Call{}, NewError(CodeMissingField, "to is required")
	}
	if len(req.Payload) == 0 {
		return call.Call{}, NewError(CodeMissingField, payloadField+" is required")
	}
	if req.To == from {
		return call.Call{}, NewError(CodeInvalidPayload, "sender and recipient must differ")
	}

	c, err := r.getCall(ctx, req.CallID)
	if err != nil {
		return call.Call{}, err
	}
	if !c.HasParticipant(from) {
		return call.Call{}, NewError(CodeUnauthorized, "not a participant of this call")
	}
	if !c.HasParticipant(req.To) {
		return call.Call{}, NewError(CodeUnauthorized, "recipient is not a participant of this call")
	}
	if c.State != call.StateRinging && c.State != call.StateAccepted {
		return call.Call{}, NewError(CodeInvalidCallState, "call is not active")
	}
	return c, nil
}

// handleRingingExpiry runs when a ringing timer fires. Losing the race to
// accept/reject/end is the expected no-op path.
func (r *Router) handleRingingExpiry(callID string) {
	ctx := context.Background()

	updated, ok, err := r.store.Miss(ctx, callID)
	if err != nil || !ok {
		return
	}
	r.log.Info("call timed out", "call_id", callID)

	ev := CallTimeoutEvent{CallID: callID, Reason: "timeout"}
	r.notifyBestEffort(ctx, updated.CallerID, EventCallTimeout, ev)
	r.notifyBestEffort(ctx, updated.CalleeID, EventCallTimeout, ev)
	r.archiveCall(ctx, updated)
}

func (r *Router) getCall(ctx context.Context, callID string) (call.Call, error) {
	c, err := r.store.Get(ctx, callID)
	if errors.Is(err, call.ErrNotFound) {
		return call.Call{}, NewError(CodeCallNotFound, "call not found")
	}
	if err != nil {
		r.log.Error("call lookup failed", "call_id", callID, "err", err)
		return call.Call{}, NewError(CodeCallSetupFailed, "call lookup failed")
	}
	return c, nil
}

func (r *Router) notifyBestEffort(ctx context.Context, userID, event string, payload any) {
	res, err := r.notifier.Notify(ctx, userID, event, payload, delivery.Options{})
	if err != nil {
		r.log.Warn("notify failed", "event", event, "user_id", userID, "err", err)
		return
	}
	if !res.Delivered {
		r.log.Debug("notify undelivered", "event", event, "user_id", userID, "reason", res.Reason)
	}
}

func (r *Router) sendCallPush(ctx context.Context, c call.Call, req InitiateRequest) {
	token, ok, err := r.registry.PushToken(ctx, c.CalleeID)
	if err != nil {
		r.log.Warn("push token lookup failed", "callee_id", c.CalleeID, "err", err)
		return
	}
	if !ok {
		return
	}
	err = r.pusher.SendIncomingCall(ctx, token, push.IncomingCall{
		CallID:       c.ID,
		CallerID:     c.CallerID,
		CallType:     string(c.Type),
		CallerName:   req.CallerName,
		CallerAvatar: req.CallerAvatar,
	})
	if err != nil {
		r.log.Warn("incoming call push failed", "call_id", c.ID, "err", err)
	}
}

func (r *Router) archiveCall(ctx context.Context, c call.Call) {
	if r.archive == nil {
		return
	}
	r.archive.Archive(ctx, c)
}
