package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

// Claims are the only supported JWT claims shape for this service.
// Identity invariant: UserID must be present; it is the sole identity the
// signaling layer trusts for the lifetime of a connection.
// DeviceID is optional; clients may also supply it in the register payload.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id,omitempty"`
	TokenType TokenType `json:"token_type"`
}
