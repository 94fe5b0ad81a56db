package api

import (
	"net/http"

	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/navigation"
	"github.com/otiai10/doggyday/internal/oauth"
)

// Router is the navigator the UI shell drives. *navigation.Stack satisfies it.
type Router interface {
	Current() navigation.Route
	History() []navigation.Route
	Push(r navigation.Route)
	Replace(r navigation.Route)
	Back() bool
	Subscribe() (<-chan navigation.Route, func())
}

var _ Router = (*navigation.Stack)(nil)

// NavigationAction names a navigator operation
type NavigationAction string

const (
	ActionPush    NavigationAction = "push"
	ActionReplace NavigationAction = "replace"
	ActionBack    NavigationAction = "back"
)

// NavigationRequest is the body of POST /api/navigation
type NavigationRequest struct {
	Action NavigationAction `json:"action"`
	Route  string           `json:"route,omitempty"`
}

// NavigationResponse is the navigator position. The guard may redirect right
// after a change, so clients should follow the stream for the settled route.
type NavigationResponse struct {
	Current navigation.Route   `json:"current"`
	History []navigation.Route `json:"history"`
}

// NavigationHandler exposes the navigator and the auth debug screen
type NavigationHandler struct {
	router  Router
	manager SessionManager
	debug   func() oauth.Diagnostics
}

// NewNavigationHandler creates a NavigationHandler. debug may be nil.
func NewNavigationHandler(router Router, manager SessionManager, debug func() oauth.Diagnostics) *NavigationHandler {
	return &NavigationHandler{router: router, manager: manager, debug: debug}
}

// GetRoute handles GET /api/navigation
func (h *NavigationHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.position(), http.StatusOK)
}

// Navigate handles POST /api/navigation
func (h *NavigationHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	route := navigation.Route(req.Route)
	switch req.Action {
	case ActionPush, ActionReplace:
		if !route.Known() {
			writeError(w, "unknown route", http.StatusBadRequest)
			return
		}
		if req.Action == ActionPush {
			h.router.Push(route)
		} else {
			h.router.Replace(route)
		}
	case ActionBack:
		if !h.router.Back() {
			writeError(w, "already at the first route", http.StatusConflict)
			return
		}
	default:
		writeError(w, "action must be push, replace or back", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.position(), http.StatusOK)
}

func (h *NavigationHandler) position() NavigationResponse {
	return NavigationResponse{Current: h.router.Current(), History: h.router.History()}
}

// AuthDebugResponse is the content of the auth debug screen
type AuthDebugResponse struct {
	OAuth oauth.Diagnostics `json:"oauth"`
	// User is nil when signed out
	User *AuthDebugUser `json:"user"`
}

// AuthDebugUser is the signed-in user as the debug screen shows it
type AuthDebugUser struct {
	UID          string                  `json:"uid"`
	Email        string                  `json:"email,omitempty"`
	ProviderData []AuthDebugProviderInfo `json:"providerData"`
}

// AuthDebugProviderInfo is one linked provider
type AuthDebugProviderInfo struct {
	ProviderID string `json:"providerId"`
	UID        string `json:"uid"`
	Email      string `json:"email,omitempty"`
}

// GetAuthDebug handles GET /api/debug/auth
func (h *NavigationHandler) GetAuthDebug(w http.ResponseWriter, r *http.Request) {
	var d oauth.Diagnostics
	if h.debug != nil {
		d = h.debug()
	}
	writeJSON(w, NewAuthDebug(d, h.manager.State().User), http.StatusOK)
}

// NewAuthDebug builds the debug screen content for the signed-in user u, which may be nil
func NewAuthDebug(d oauth.Diagnostics, u *identity.Session) AuthDebugResponse {
	resp := AuthDebugResponse{OAuth: d}
	if u == nil {
		return resp
	}
	resp.User = &AuthDebugUser{
		UID:          u.UID,
		Email:        u.Email,
		ProviderData: make([]AuthDebugProviderInfo, 0, len(u.ProviderData)),
	}
	for _, p := range u.ProviderData {
		resp.User.ProviderData = append(resp.User.ProviderData, AuthDebugProviderInfo{
			ProviderID: p.ProviderID,
			UID:        p.UID,
			Email:      p.Email,
		})
	}
	return resp
}
