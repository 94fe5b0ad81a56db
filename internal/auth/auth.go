// Package auth verifies Firebase ID tokens with the Firebase Admin SDK and
// carries the verified claims through request contexts.
package auth

import (
	"context"
	"time"
)

// Claims represents the decoded JWT claims from Firebase Auth
type Claims struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	ProviderID    string    `json:"provider_id,omitempty"`
	IssuedAt      time.Time `json:"iat"`
	ExpiresAt     time.Time `json:"exp"`
}

// TokenVerifier verifies Firebase ID tokens
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Claims, error)
}
