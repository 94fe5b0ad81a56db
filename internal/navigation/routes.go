// Package navigation keeps the visible route consistent with the session:
// signed-out users are sent to the login screen and signed-in users are kept
// out of the auth screens.
package navigation

import (
	"github.com/otiai10/doggyday/internal/session"
)

// Route is an application screen path
type Route string

const (
	RouteLogin        Route = "/login"
	RouteRegister     Route = "/register"
	RouteHome         Route = "/"
	RouteDebugAuth    Route = "/debug-auth"
	RouteDiscover     Route = "/discover"
	RouteEvents       Route = "/events"
	RouteProfile      Route = "/profile"
	RouteTestFirebase Route = "/test-firebase"
)

// Routes lists every known route
var Routes = []Route{
	RouteLogin,
	RouteRegister,
	RouteHome,
	RouteDebugAuth,
	RouteDiscover,
	RouteEvents,
	RouteProfile,
	RouteTestFirebase,
}

// Known reports whether r is one of Routes
func (r Route) Known() bool {
	for _, known := range Routes {
		if r == known {
			return true
		}
	}
	return false
}

// IsAuthRoute reports whether r is reachable without a session
func (r Route) IsAuthRoute() bool {
	switch r {
	case RouteLogin, RouteRegister, RouteDebugAuth:
		return true
	}
	return false
}

// Decide returns the route to replace current with, and false when no
// redirect is needed. Nothing is decided while the session is loading.
func Decide(current Route, state session.State) (Route, bool) {
	if state.Loading {
		return "", false
	}
	switch {
	case state.User == nil && !current.IsAuthRoute():
		return RouteLogin, true
	case state.User != nil && current.IsAuthRoute() && current != RouteDebugAuth:
		return RouteHome, true
	default:
		return "", false
	}
}
