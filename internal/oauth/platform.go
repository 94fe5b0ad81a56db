// Package oauth orchestrates the Google sign-in prompt: it builds the
// authorization request, waits for the redirect and exchanges the resulting
// ID token with the Session Store.
package oauth

import (
	"fmt"
	"strings"
)

// Platform is the client platform the app runs as
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// ParsePlatform parses a platform name case-insensitively
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q (want ios, android or web)", s)
	}
}

// Native reports whether the platform receives redirects through its URI scheme
func (p Platform) Native() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// ClientIDs holds the OAuth client ID registered for each platform
type ClientIDs struct {
	IOS     string `yaml:"ios" json:"ios"`
	Android string `yaml:"android" json:"android"`
	Web     string `yaml:"web" json:"web"`
}

// Resolve returns the client ID for p
func (c ClientIDs) Resolve(p Platform) (string, error) {
	var id string
	switch p {
	case PlatformIOS:
		id = c.IOS
	case PlatformAndroid:
		id = c.Android
	case PlatformWeb:
		id = c.Web
	default:
		return "", fmt.Errorf("unknown platform %q", p)
	}
	if id == "" {
		return "", fmt.Errorf("no OAuth client ID configured for platform %s", p)
	}
	return id, nil
}
