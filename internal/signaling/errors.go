package signaling

import "errors"

// Code is the wire-level error taxonomy. Values are part of the public API;
// clients switch on them.
type Code string

const (
	CodeCallNotFound       Code = "CALL_NOT_FOUND"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidPayload     Code = "INVALID_PAYLOAD"
	CodeMissingField       Code = "MISSING_FIELD"
	CodeInvalidCallState   Code = "INVALID_CALL_STATE"
	CodeCalleeBusy         Code = "CALLEE_BUSY"
	CodeCalleeNotAvailable Code = "CALLEE_NOT_AVAILABLE"
	CodeCallSetupFailed    Code = "CALL_SETUP_FAILED"
	CodeRegistrationFailed Code = "REGISTRATION_FAILED"
	CodeInvalidUserID      Code = "INVALID_USER_ID"
)

// Error is a structured operation error returned to the initiating client.
// No operation throws past the router boundary; every failure path resolves
// to one of these.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError extracts a structured signaling error, if err carries one.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
