package api

import (
	"context"
	"net/http"
	"time"

	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/metrics"
	"github.com/otiai10/doggyday/internal/oauth"
	"github.com/otiai10/doggyday/internal/session"
)

// SessionManager is the Auth Session Manager as seen by the HTTP layer.
// *session.Manager satisfies it.
type SessionManager interface {
	State() session.State
	Await(ctx context.Context, pred func(session.State) bool) (session.State, error)
	Subscribe() (<-chan session.State, func())
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	Register(ctx context.Context, email, password string) (*identity.Session, error)
	Logout(ctx context.Context) error
	IsGoogleAuthReady() bool
	LoginWithGoogle(ctx context.Context) (*identity.Session, error)
	UpdateProfile(ctx context.Context, update identity.ProfileUpdate) (*identity.Session, error)
}

var _ SessionManager = (*session.Manager)(nil)

// RedirectSink accepts OAuth redirects captured by the app's URI scheme.
// *oauth.BrowserPrompter satisfies it.
type RedirectSink interface {
	Deliver(rawURL string) error
}

// CredentialsRequest is the body of login and register calls
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Confirm must equal Password on register
	Confirm string `json:"confirm,omitempty"`
}

// ProfileRequest is the body of profile updates. Absent fields are unchanged.
type ProfileRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// StateResponse is the session state exposed to the UI shell
type StateResponse struct {
	Phase           string            `json:"phase"`
	Loading         bool              `json:"loading"`
	User            *identity.Session `json:"user"`
	GoogleAuthReady bool              `json:"googleAuthReady"`
}

// SessionResponse is the outcome of a sign-in call
type SessionResponse struct {
	User *identity.Session `json:"user"`
	// Cancelled is set when the user dismissed the Google prompt
	Cancelled bool `json:"cancelled,omitempty"`
}

// restoreWait bounds how long a session change waits for the stored session
// to be restored
const restoreWait = 10 * time.Second

// SessionHandler exposes the Auth Session Manager
type SessionHandler struct {
	manager  SessionManager
	redirect RedirectSink
	metrics  *metrics.Metrics
}

// NewSessionHandler creates a SessionHandler. redirect and m may be nil.
func NewSessionHandler(manager SessionManager, redirect RedirectSink, m *metrics.Metrics) *SessionHandler {
	return &SessionHandler{manager: manager, redirect: redirect, metrics: m}
}

func stateResponse(s session.State, googleReady bool) StateResponse {
	return StateResponse{
		Phase:           s.Phase().String(),
		Loading:         s.Loading,
		User:            s.User,
		GoogleAuthReady: googleReady,
	}
}

// GetState handles GET /api/session
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, stateResponse(h.manager.State(), h.manager.IsGoogleAuthReady()), http.StatusOK)
}

// Login handles POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !h.restored(w, r) {
		return
	}

	user, err := h.manager.Login(r.Context(), req.Email, req.Password)
	h.observe("password", user, err)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, SessionResponse{User: user}, http.StatusOK)
}

// Register handles POST /api/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Password != req.Confirm {
		writeJSON(w, ErrorResponse{Error: "passwords do not match", Kind: "password_mismatch"}, http.StatusBadRequest)
		return
	}
	if !h.restored(w, r) {
		return
	}

	user, err := h.manager.Register(r.Context(), req.Email, req.Password)
	h.observe("register", user, err)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, SessionResponse{User: user}, http.StatusCreated)
}

// Logout handles POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.restored(w, r) {
		return
	}
	if err := h.manager.Logout(r.Context()); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoginWithGoogle handles POST /api/session/google. It blocks until the
// consent prompt resolves.
func (h *SessionHandler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	if !h.restored(w, r) {
		return
	}
	user, err := h.manager.LoginWithGoogle(r.Context())
	h.observe("google", user, err)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, SessionResponse{User: user, Cancelled: user == nil}, http.StatusOK)
}

// DeliverRedirect handles POST /api/session/google/redirect, used by native
// shells to forward the app-scheme redirect they were opened with.
func (h *SessionHandler) DeliverRedirect(w http.ResponseWriter, r *http.Request) {
	if h.redirect == nil {
		writeError(w, "redirect delivery is not available", http.StatusNotFound)
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := h.redirect.Deliver(req.URL); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UpdateProfile handles PATCH /api/session/profile
func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !h.restored(w, r) {
		return
	}

	user, err := h.manager.UpdateProfile(r.Context(), identity.ProfileUpdate{
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, SessionResponse{User: user}, http.StatusOK)
}

// restored holds a session change until the manager has left Initializing,
// so a restore finishing late cannot replace what the request did.
func (h *SessionHandler) restored(w http.ResponseWriter, r *http.Request) bool {
	ctx, cancel := context.WithTimeout(r.Context(), restoreWait)
	defer cancel()
	if _, err := h.manager.Await(ctx, func(s session.State) bool { return !s.Loading }); err != nil {
		writeJSON(w, ErrorResponse{Error: "session is still being restored", Kind: "restoring"}, http.StatusServiceUnavailable)
		return false
	}
	return true
}

// observe records the outcome of a sign-in attempt
func (h *SessionHandler) observe(method string, user *identity.Session, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err != nil:
		_, resp := authFailure(err)
		outcome = resp.Kind
	case user == nil:
		outcome = "cancelled"
	}
	h.metrics.AuthAttempts.WithLabelValues(method, outcome).Inc()
}

var _ RedirectSink = (*oauth.BrowserPrompter)(nil)
