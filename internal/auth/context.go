package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxDeviceID
)

// WithIdentity binds the authenticated identity to a context for the
// remainder of a connection's life.
func WithIdentity(ctx context.Context, userID, deviceID string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxDeviceID, deviceID)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func DeviceID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxDeviceID).(string); ok {
		return s
	}
	return ""
}
