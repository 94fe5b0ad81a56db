// Package identity is the Session Store: the client side of Firebase
// Authentication. It owns the canonical signed-in identity of this process
// and notifies subscribers whenever that identity changes.
package identity

import (
	"net/url"
	"time"
)

// ProviderID constants for linked identity providers
const (
	ProviderGoogle   = "google.com"
	ProviderPassword = "password"
)

// Session is the authenticated identity held by the Session Store.
// A nil *Session means nobody is signed in.
type Session struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email,omitempty"`
	DisplayName   string         `json:"displayName,omitempty"`
	PhotoURL      string         `json:"photoURL,omitempty"`
	EmailVerified bool           `json:"emailVerified"`
	ProviderData  []ProviderInfo `json:"providerData"`

	// Token material stays inside the process.
	IDToken      string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}

// ProviderInfo is one linked identity provider of a Session
type ProviderInfo struct {
	ProviderID  string `json:"providerId"`
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Copy creates a deep copy of the Session to prevent mutation.
// Copy of a nil Session is nil.
func (s *Session) Copy() *Session {
	if s == nil {
		return nil
	}
	copied := *s
	if s.ProviderData != nil {
		copied.ProviderData = make([]ProviderInfo, len(s.ProviderData))
		copy(copied.ProviderData, s.ProviderData)
	}
	return &copied
}

// Expired reports whether the ID token backing the session has expired at t
func (s *Session) Expired(t time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !t.Before(s.ExpiresAt)
}

// HasProvider reports whether providerID is linked to the session
func (s *Session) HasProvider(providerID string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.ProviderData {
		if p.ProviderID == providerID {
			return true
		}
	}
	return false
}

// Credential is a federated identity provider credential to exchange for a Session
type Credential struct {
	ProviderID  string
	IDToken     string
	AccessToken string
	// RequestURI is the URI the IdP redirected to; Firebase requires one.
	RequestURI string
}

// GoogleCredential builds a Google provider credential from an OAuth ID token
// and an optional access token.
func GoogleCredential(idToken, accessToken string) Credential {
	return Credential{
		ProviderID:  ProviderGoogle,
		IDToken:     idToken,
		AccessToken: accessToken,
		RequestURI:  "http://localhost",
	}
}

// postBody encodes the credential the way the verifyAssertion endpoint expects
func (c Credential) postBody() string {
	v := url.Values{}
	v.Set("providerId", c.ProviderID)
	if c.IDToken != "" {
		v.Set("id_token", c.IDToken)
	}
	if c.AccessToken != "" {
		v.Set("access_token", c.AccessToken)
	}
	return v.Encode()
}

// ProfileUpdate carries the mutable profile fields of a Session.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}
