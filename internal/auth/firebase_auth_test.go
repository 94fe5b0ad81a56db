package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	firebaseAuth "firebase.google.com/go/v4/auth"
)

type fakeIDTokenVerifier struct {
	token         *firebaseAuth.Token
	err           error
	plainCalls    int
	revokedChecks int
}

func (f *fakeIDTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error) {
	f.plainCalls++
	return f.token, f.err
}

func (f *fakeIDTokenVerifier) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseAuth.Token, error) {
	f.revokedChecks++
	return f.token, f.err
}

func TestGetStringClaim(t *testing.T) {
	tests := []struct {
		name     string
		claims   map[string]any
		key      string
		expected string
	}{
		{"existing string claim", map[string]any{"email": "owner@example.com"}, "email", "owner@example.com"},
		{"missing claim", map[string]any{}, "email", ""},
		{"wrong type claim", map[string]any{"email": 123}, "email", ""},
		{"nil claims", nil, "email", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getStringClaim(tt.claims, tt.key); got != tt.expected {
				t.Errorf("getStringClaim() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetBoolClaim(t *testing.T) {
	tests := []struct {
		name     string
		claims   map[string]any
		key      string
		expected bool
	}{
		{"true claim", map[string]any{"email_verified": true}, "email_verified", true},
		{"false claim", map[string]any{"email_verified": false}, "email_verified", false},
		{"missing claim", map[string]any{}, "email_verified", false},
		{"string instead of bool", map[string]any{"email_verified": "true"}, "email_verified", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getBoolClaim(tt.claims, tt.key); got != tt.expected {
				t.Errorf("getBoolClaim() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFirebaseTokenVerifier_VerifyIDToken(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	token := &firebaseAuth.Token{
		UID:      "owner-1",
		IssuedAt: exp.Add(-time.Hour).Unix(),
		Expires:  exp.Unix(),
		Firebase: firebaseAuth.FirebaseInfo{SignInProvider: "google.com"},
		Claims: map[string]any{
			"email":          "owner@example.com",
			"email_verified": true,
			"name":           "Dog Owner",
			"picture":        "https://example.com/p.png",
		},
	}

	t.Run("plain verification", func(t *testing.T) {
		fake := &fakeIDTokenVerifier{token: token}
		v := &FirebaseTokenVerifier{verifier: fake}

		claims, err := v.VerifyIDToken(context.Background(), "id-token")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fake.plainCalls != 1 || fake.revokedChecks != 0 {
			t.Errorf("expected plain verification only, got plain=%d revoked=%d", fake.plainCalls, fake.revokedChecks)
		}
		if claims.UID != "owner-1" || claims.Email != "owner@example.com" || !claims.EmailVerified {
			t.Errorf("unexpected claims: %+v", claims)
		}
		if claims.ProviderID != "google.com" {
			t.Errorf("expected ProviderID google.com, got %s", claims.ProviderID)
		}
		if !claims.ExpiresAt.Equal(exp) {
			t.Errorf("expected ExpiresAt %v, got %v", exp, claims.ExpiresAt)
		}
	})

	t.Run("revocation check", func(t *testing.T) {
		fake := &fakeIDTokenVerifier{token: token}
		v := &FirebaseTokenVerifier{verifier: fake, checkRevoked: true}

		if _, err := v.VerifyIDToken(context.Background(), "id-token"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fake.revokedChecks != 1 {
			t.Errorf("expected a revocation check, got %d", fake.revokedChecks)
		}
	})

	t.Run("error is wrapped", func(t *testing.T) {
		cause := errors.New("bad signature")
		v := &FirebaseTokenVerifier{verifier: &fakeIDTokenVerifier{err: cause}}

		_, err := v.VerifyIDToken(context.Background(), "id-token")
		if !errors.Is(err, cause) {
			t.Errorf("expected wrapped cause, got %v", err)
		}
		if IsTokenRejected(err) {
			t.Error("plain errors should not count as rejected tokens")
		}
	})
}

func TestIsTokenRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection reset"), false},
		{"sentinel", ErrTokenRejected, true},
		{"wrapped sentinel", fmt.Errorf("failed to verify ID token: %w", ErrTokenRejected), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTokenRejected(tt.err); got != tt.want {
				t.Errorf("IsTokenRejected() = %v, want %v", got, tt.want)
			}
		})
	}
}
