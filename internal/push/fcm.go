package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender sends incoming-call pushes via Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initializes the Firebase messaging client from a
// service-account file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("fcm credentials file is required")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// SendIncomingCall sends a silent, data-only, high-priority push. No
// notification payload is included: on Android that makes the background
// message handler fire even when the app is killed, so the client can show
// the native incoming-call UI.
func (s *FCMSender) SendIncomingCall(ctx context.Context, token string, call IncomingCall) error {
	if token == "" {
		return nil
	}
	msg := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":          "incoming_call",
			"call_id":       call.CallID,
			"caller_id":     call.CallerID,
			"call_type":     call.CallType,
			"caller_name":   call.CallerName,
			"caller_avatar": call.CallerAvatar,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "voip",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
				},
			},
		},
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
