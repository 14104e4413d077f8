package auth

import (
	"testing"
	"time"

	"signaling-platform/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "user-1", "device-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.DeviceID != "device-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "u", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Past the TTL plus clock-skew leeway.
	if _, err := m.Verify(tok, now.Add(5*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuerA, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "a", AccessTokenTTL: time.Minute})
	issuerB, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "b", AccessTokenTTL: time.Minute})

	now := time.Unix(1700000000, 0).UTC()
	tok, err := issuerA.Issue(now, "u", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuerB.Verify(tok, now); err == nil {
		t.Fatalf("expected issuer mismatch error")
	}
}

func TestVerifyRejectsTamperedSecret(t *testing.T) {
	a, _ := NewManager(config.AuthConfig{JWTSecret: "secret-a", AccessTokenTTL: time.Minute})
	b, _ := NewManager(config.AuthConfig{JWTSecret: "secret-b", AccessTokenTTL: time.Minute})

	now := time.Unix(1700000000, 0).UTC()
	tok, err := a.Issue(now, "u", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}
