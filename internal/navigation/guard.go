package navigation

import (
	"context"
	"log/slog"

	"github.com/otiai10/doggyday/internal/session"
)

// Navigator is what the guard needs from a router
type Navigator interface {
	Current() Route
	Replace(r Route)
	Subscribe() (<-chan Route, func())
}

// StateSource provides session snapshots. *session.Manager satisfies it.
type StateSource interface {
	State() session.State
	Subscribe() (<-chan session.State, func())
}

// Guard redirects the navigator whenever the route or the session changes
type Guard struct {
	nav    Navigator
	states StateSource
	logger *slog.Logger
}

// NewGuard creates a Guard
func NewGuard(nav Navigator, states StateSource, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{nav: nav, states: states, logger: logger}
}

// Run evaluates the guard on every change until ctx is done
func (g *Guard) Run(ctx context.Context) error {
	routes, unsubRoutes := g.nav.Subscribe()
	defer unsubRoutes()
	states, unsubStates := g.states.Subscribe()
	defer unsubStates()

	route := g.nav.Current()
	state := g.states.State()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-routes:
			if !ok {
				return nil
			}
			route = r
		case s, ok := <-states:
			if !ok {
				return nil
			}
			state = s
		}

		if target, redirect := Decide(route, state); redirect {
			g.logger.Info("navigation guard redirect", "from", string(route), "to", string(target), "phase", state.Phase().String())
			g.nav.Replace(target)
			// A state queued behind this one must be judged against target,
			// not against the route being left.
			route = target
		}
	}
}
