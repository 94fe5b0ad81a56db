package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/session"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// OAuthDeniedGuidance is shown when the user refuses the Google consent screen
const OAuthDeniedGuidance = "Google sign-in was denied. Allow access on the consent screen, or sign in with email and password instead."

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind names the error taxonomy entry for sign-in failures
	Kind string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Already wrote headers, can only log
		return
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// extractIDFromPath returns the first path segment after prefix and the rest
func extractIDFromPath(path, prefix string) (id, rest string) {
	if !strings.HasPrefix(path, prefix) {
		return "", ""
	}
	id, rest, _ = strings.Cut(strings.TrimPrefix(path, prefix), "/")
	return id, rest
}

// methodNotAllowed is the fallthrough of every method switch
func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, "method not allowed", http.StatusMethodNotAllowed)
}

// authFailure maps the sign-in error taxonomy onto an HTTP response
func authFailure(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: "invalid email or password", Kind: "invalid_credentials"}
	case errors.Is(err, identity.ErrUserNotFound):
		return http.StatusUnauthorized, ErrorResponse{Error: "no account exists for this email", Kind: "user_not_found"}
	case errors.Is(err, identity.ErrEmailAlreadyInUse):
		return http.StatusConflict, ErrorResponse{Error: "an account already exists for this email", Kind: "email_already_in_use"}
	case errors.Is(err, identity.ErrWeakPassword):
		return http.StatusBadRequest, ErrorResponse{Error: "password is too weak", Kind: "weak_password"}
	case errors.Is(err, identity.ErrOAuthDenied):
		return http.StatusForbidden, ErrorResponse{Error: OAuthDeniedGuidance, Kind: "oauth_denied"}
	case errors.Is(err, identity.ErrNetwork):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "identity service is unreachable", Kind: "network"}
	case errors.Is(err, session.ErrGoogleAuthNotReady):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "google sign-in is not ready yet", Kind: "not_ready"}
	case errors.Is(err, identity.ErrNoSession):
		return http.StatusUnauthorized, ErrorResponse{Error: "not signed in", Kind: "no_session"}
	default:
		return http.StatusBadGateway, ErrorResponse{Error: "authentication failed", Kind: "unknown"}
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status, resp := authFailure(err)
	writeJSON(w, resp, status)
}

// writeBookingError maps booking errors onto an HTTP response
func writeBookingError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, booking.ErrInvalid):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrFullyBooked):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, fallback, http.StatusInternalServerError)
	}
}
