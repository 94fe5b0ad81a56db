package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// idTokenVerifier is an interface for verifying ID tokens
// Both firebaseAuth.Client and firebaseAuth.TenantClient implement this
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
}

// FirebaseTokenVerifier implements TokenVerifier using Firebase Admin SDK
type FirebaseTokenVerifier struct {
	verifier     idTokenVerifier
	tenantID     string
	checkRevoked bool
}

// FirebaseTokenVerifierConfig holds configuration for FirebaseTokenVerifier
type FirebaseTokenVerifierConfig struct {
	ProjectID       string
	CredentialsPath string
	TenantID        string // Optional: for multi-tenant Identity Platform
	// CheckRevoked makes every verification also consult the revocation
	// state of the user, at the cost of one extra API call.
	CheckRevoked bool
}

// NewFirebaseTokenVerifierWithConfig creates a new Firebase token verifier with its own Firebase app
func NewFirebaseTokenVerifierWithConfig(ctx context.Context, cfg FirebaseTokenVerifierConfig) (*FirebaseTokenVerifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	return NewFirebaseTokenVerifierFromClient(authClient, cfg.TenantID, cfg.CheckRevoked)
}

// NewFirebaseTokenVerifierFromClient creates a verifier sharing an existing auth client
func NewFirebaseTokenVerifierFromClient(authClient *firebaseAuth.Client, tenantID string, checkRevoked bool) (*FirebaseTokenVerifier, error) {
	var verifier idTokenVerifier
	if tenantID != "" {
		tenantClient, err := authClient.TenantManager.AuthForTenant(tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant auth client for %s: %w", tenantID, err)
		}
		verifier = tenantClient
	} else {
		verifier = authClient
	}

	return &FirebaseTokenVerifier{
		verifier:     verifier,
		tenantID:     tenantID,
		checkRevoked: checkRevoked,
	}, nil
}

// VerifyIDToken verifies a Firebase ID token and returns the decoded claims
func (v *FirebaseTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Claims, error) {
	var (
		token *firebaseAuth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.verifier.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = v.verifier.VerifyIDToken(ctx, idToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return claimsFromToken(token), nil
}

// ErrTokenRejected can be wrapped by TokenVerifier implementations to report a
// token that is no longer acceptable.
var ErrTokenRejected = errors.New("token rejected")

// IsTokenRejected reports whether err means the token itself is unusable
// (malformed, expired, revoked or owned by a disabled user), as opposed to a
// transport failure.
func IsTokenRejected(err error) bool {
	if errors.Is(err, ErrTokenRejected) {
		return true
	}
	// The SDK predicates match on the concrete error, so walk the chain.
	for ; err != nil; err = errors.Unwrap(err) {
		if firebaseAuth.IsIDTokenInvalid(err) {
			return true
		}
	}
	return false
}

func claimsFromToken(token *firebaseAuth.Token) *Claims {
	claims := &Claims{
		UID:           token.UID,
		Email:         getStringClaim(token.Claims, "email"),
		EmailVerified: getBoolClaim(token.Claims, "email_verified"),
		Name:          getStringClaim(token.Claims, "name"),
		Picture:       getStringClaim(token.Claims, "picture"),
		IssuedAt:      time.Unix(token.IssuedAt, 0).UTC(),
		ExpiresAt:     time.Unix(token.Expires, 0).UTC(),
	}

	if token.Firebase.SignInProvider != "" {
		claims.ProviderID = token.Firebase.SignInProvider
	}

	return claims
}

// getStringClaim safely extracts a string claim from the claims map
func getStringClaim(claims map[string]any, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// getBoolClaim safely extracts a boolean claim from the claims map
func getBoolClaim(claims map[string]any, key string) bool {
	val, ok := claims[key]
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}
