package identity

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"golang.org/x/oauth2"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// AuthEmulatorHostEnv points the client at a local Firebase Auth emulator
const AuthEmulatorHostEnv = "FIREBASE_AUTH_EMULATOR_HOST"

// NewToolkitService creates an Identity Toolkit client authenticated with the
// project's Web API key. FIREBASE_AUTH_EMULATOR_HOST is honored.
func NewToolkitService(ctx context.Context, apiKey string, opts ...option.ClientOption) (*identitytoolkit.Service, error) {
	base := []option.ClientOption{option.WithAPIKey(apiKey)}
	if host := os.Getenv(AuthEmulatorHostEnv); host != "" {
		base = append(base, option.WithEndpoint("http://"+host+"/www.googleapis.com/identitytoolkit/v3/relyingparty/"))
	}

	svc, err := identitytoolkit.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity toolkit client: %w", err)
	}
	return svc, nil
}

// tokenGrant is what the identity platform hands back on a successful sign-in
type tokenGrant struct {
	LocalID       string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	IDToken       string
	RefreshToken  string
}

// accountsAPI is the subset of the Identity Toolkit used by FirebaseStore
type accountsAPI interface {
	signIn(ctx context.Context, email, password string) (*tokenGrant, error)
	signUp(ctx context.Context, email, password string) (*tokenGrant, error)
	signInWithIdp(ctx context.Context, cred Credential) (*tokenGrant, error)
}

type toolkitAccounts struct {
	svc *identitytoolkit.Service
}

func (t toolkitAccounts) signIn(ctx context.Context, email, password string) (*tokenGrant, error) {
	resp, err := t.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &tokenGrant{
		LocalID:      resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		PhotoURL:     resp.PhotoUrl,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

func (t toolkitAccounts) signUp(ctx context.Context, email, password string) (*tokenGrant, error) {
	resp, err := t.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	grant := &tokenGrant{
		LocalID:      resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
	}
	if grant.RefreshToken == "" {
		// Legacy sign-up responses carry no secure token pair.
		return t.signIn(ctx, email, password)
	}
	return grant, nil
}

func (t toolkitAccounts) signInWithIdp(ctx context.Context, cred Credential) (*tokenGrant, error) {
	requestURI := cred.RequestURI
	if requestURI == "" {
		requestURI = "http://localhost"
	}
	resp, err := t.svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:            cred.postBody(),
		RequestUri:          requestURI,
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if resp.ErrorMessage != "" {
		return nil, codeError(resp.ErrorMessage)
	}
	return &tokenGrant{
		LocalID:       resp.LocalId,
		Email:         resp.Email,
		DisplayName:   resp.DisplayName,
		PhotoURL:      resp.PhotoUrl,
		EmailVerified: resp.EmailVerified,
		IDToken:       resp.IdToken,
		RefreshToken:  resp.RefreshToken,
	}, nil
}

// TokenRefresher exchanges a refresh token for a fresh ID token
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (idToken, newRefreshToken string, err error)
}

// SecureTokenRefresher refreshes ID tokens against the Secure Token service
// using the OAuth 2.0 refresh_token grant.
type SecureTokenRefresher struct {
	conf *oauth2.Config
}

// NewSecureTokenRefresher creates a refresher for the project's Web API key.
// FIREBASE_AUTH_EMULATOR_HOST is honored.
func NewSecureTokenRefresher(apiKey string) *SecureTokenRefresher {
	base := "https://securetoken.googleapis.com"
	if host := os.Getenv(AuthEmulatorHostEnv); host != "" {
		base = "http://" + host + "/securetoken.googleapis.com"
	}
	return newSecureTokenRefresher(base + "/v1/token?key=" + url.QueryEscape(apiKey))
}

func newSecureTokenRefresher(tokenURL string) *SecureTokenRefresher {
	return &SecureTokenRefresher{
		conf: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Refresh implements TokenRefresher
func (r *SecureTokenRefresher) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	if refreshToken == "" {
		return "", "", newAuthError(ErrInvalidCredentials, "MISSING_REFRESH_TOKEN", "MISSING_REFRESH_TOKEN")
	}

	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", err
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", "", newAuthError(ErrUnknownAuth, "", "token response carries no id_token")
	}
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return idToken, newRefresh, nil
}
