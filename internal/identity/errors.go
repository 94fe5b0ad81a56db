package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Error taxonomy shared by every Session Store implementation.
// Use errors.Is against these; concrete failures are *AuthError values.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyInUse  = errors.New("email already in use")
	ErrWeakPassword       = errors.New("weak password")
	ErrNetwork            = errors.New("network error")
	ErrOAuthDenied        = errors.New("oauth access denied")
	// ErrOAuthCancelled marks a dismissed consent prompt. It is an outcome,
	// not a failure, and is never surfaced from a sign-in call.
	ErrOAuthCancelled = errors.New("oauth cancelled")
	ErrUnknownAuth    = errors.New("unknown auth error")

	// ErrNoSession is returned by operations that need a signed-in user
	ErrNoSession = errors.New("no active session")
)

// AuthError is a failure reported by the identity platform, classified
// into one of the taxonomy sentinels.
type AuthError struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return e.Kind.Error()
}

// Unwrap exposes both the taxonomy kind and the underlying platform error
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// newAuthError is a shorthand for errors raised locally
func newAuthError(kind error, code, message string) *AuthError {
	return &AuthError{Kind: kind, Code: code, Message: message}
}

// codeKinds maps Identity Toolkit error codes onto the taxonomy
var codeKinds = map[string]error{
	"EMAIL_NOT_FOUND":           ErrUserNotFound,
	"USER_NOT_FOUND":            ErrUserNotFound,
	"INVALID_PASSWORD":          ErrInvalidCredentials,
	"INVALID_LOGIN_CREDENTIALS": ErrInvalidCredentials,
	"INVALID_EMAIL":             ErrInvalidCredentials,
	"MISSING_PASSWORD":          ErrInvalidCredentials,
	"MISSING_EMAIL":             ErrInvalidCredentials,
	"INVALID_IDP_RESPONSE":      ErrInvalidCredentials,
	"INVALID_ID_TOKEN":          ErrInvalidCredentials,
	"USER_DISABLED":             ErrInvalidCredentials,
	"EMAIL_EXISTS":              ErrEmailAlreadyInUse,
	"WEAK_PASSWORD":             ErrWeakPassword,
}

// classify converts a platform error into an *AuthError.
// Errors that are already classified pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		authErr := codeError(apiErr.Message)
		authErr.Err = err
		return authErr
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return &AuthError{Kind: ErrNetwork, Message: err.Error(), Err: err}
		}
		code := retrieveErr.ErrorCode
		if code == "" {
			code = "INVALID_REFRESH_TOKEN"
		}
		return &AuthError{Kind: ErrInvalidCredentials, Code: code, Message: err.Error(), Err: err}
	}

	if isNetworkError(err) {
		return &AuthError{Kind: ErrNetwork, Message: err.Error(), Err: err}
	}

	return &AuthError{Kind: ErrUnknownAuth, Message: err.Error(), Err: err}
}

// codeError classifies an error message carried in a successful response body
func codeError(message string) *AuthError {
	code := errorCode(message)
	kind, ok := codeKinds[code]
	if !ok {
		kind = ErrUnknownAuth
	}
	return &AuthError{Kind: kind, Code: code, Message: message}
}

// errorCode extracts "WEAK_PASSWORD" from "WEAK_PASSWORD : Password should be ..."
func errorCode(message string) string {
	code, _, _ := strings.Cut(message, ":")
	return strings.TrimSpace(code)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
