// Package session is the Auth Session Manager. It mirrors the Session Store
// into a local reactive state and exposes the sign-in operations the
// application uses.
package session

import (
	"github.com/otiai10/doggyday/internal/identity"
)

// Phase is the lifecycle position of the session
type Phase int

const (
	// PhaseInitializing is the state before the first Session Store notification
	PhaseInitializing Phase = iota
	PhaseUnauthenticated
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is a snapshot of the manager's cached session
type State struct {
	User    *identity.Session `json:"user"`
	Loading bool              `json:"loading"`
}

// Phase derives the lifecycle phase from the snapshot
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseInitializing
	case s.User == nil:
		return PhaseUnauthenticated
	default:
		return PhaseAuthenticated
	}
}

// Authenticated reports whether a user is signed in
func (s State) Authenticated() bool {
	return s.Phase() == PhaseAuthenticated
}

func (s State) copy() State {
	return State{User: s.User.Copy(), Loading: s.Loading}
}
