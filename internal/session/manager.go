package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/otiai10/doggyday/internal/identity"
)

// ErrGoogleAuthNotReady is returned by LoginWithGoogle before the OAuth
// request has been prepared.
var ErrGoogleAuthNotReady = errors.New("google sign-in is not ready yet")

// ErrNotStarted is returned by Await when the manager was never started
var ErrNotStarted = errors.New("session manager not started")

// GoogleSignIn is the OAuth flow as seen by the manager
type GoogleSignIn interface {
	Ready() bool
	// SignIn prompts for consent and exchanges the result. A dismissed
	// prompt yields (nil, nil).
	SignIn(ctx context.Context) (*identity.Session, error)
}

// Manager is the Auth Session Manager.
//
// Its state changes only when the Session Store notifies; the operations
// forward to the store and never touch state themselves. A single goroutine
// started by Start owns all writes.
type Manager struct {
	store  identity.Store
	google GoogleSignIn
	logger *slog.Logger

	mu     sync.RWMutex
	state  State
	subs   map[int]chan State
	nextID int

	startOnce sync.Once
	started   chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithGoogleSignIn wires the OAuth flow used by LoginWithGoogle
func WithGoogleSignIn(g GoogleSignIn) Option {
	return func(m *Manager) {
		m.google = g
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a Manager in the Initializing phase
func New(store identity.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		logger:  slog.Default(),
		state:   State{Loading: true},
		subs:    make(map[int]chan State),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the Session Store and runs the state loop until ctx is
// done. It returns immediately; calling it more than once has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ch, unsubscribe := m.store.Subscribe()
		close(m.started)
		go m.run(ctx, ch, unsubscribe)
	})
}

// run is the only writer of m.state
func (m *Manager) run(ctx context.Context, ch <-chan *identity.Session, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			m.closeSubscribers()
			return
		case user, ok := <-ch:
			if !ok {
				m.closeSubscribers()
				return
			}
			m.apply(user)
		}
	}
}

// apply replaces the cached state with the notified identity
func (m *Manager) apply(user *identity.Session) {
	next := State{User: user.Copy(), Loading: false}

	m.mu.Lock()
	prev := m.state.Phase()
	m.state = next
	// offer never blocks, so delivering under the lock is safe and keeps
	// unsubscribe from closing a channel mid-send.
	for _, ch := range m.subs {
		offer(ch, next.copy())
	}
	m.mu.Unlock()

	if phase := next.Phase(); phase != prev {
		attrs := []any{"from", prev.String(), "to", phase.String()}
		if user != nil {
			attrs = append(attrs, "uid", user.UID)
		}
		m.logger.Info("session state changed", attrs...)
	}
}

// offer delivers s, replacing an undelivered older snapshot
func offer(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// State returns a snapshot of the current session state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.copy()
}

// Subscribe returns a channel that yields the current state immediately and
// then every subsequent state. A slow reader only ever misses intermediate
// snapshots, never the latest one.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.state.copy()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

func (m *Manager) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

// Await blocks until the state satisfies pred or ctx is done
func (m *Manager) Await(ctx context.Context, pred func(State) bool) (State, error) {
	select {
	case <-m.started:
	default:
		return m.State(), ErrNotStarted
	}

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return m.State(), ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return m.State(), ErrNotStarted
			}
			if pred(s) {
				return s, nil
			}
		}
	}
}

// Login signs in with email and password
func (m *Manager) Login(ctx context.Context, email, password string) (*identity.Session, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}
	return m.store.SignInWithPassword(ctx, strings.TrimSpace(email), password)
}

// Register creates a password account and signs it in
func (m *Manager) Register(ctx context.Context, email, password string) (*identity.Session, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}
	return m.store.CreateAccount(ctx, strings.TrimSpace(email), password)
}

// Logout signs the current user out
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.SignOut(ctx)
}

// IsGoogleAuthReady reports whether LoginWithGoogle can prompt
func (m *Manager) IsGoogleAuthReady() bool {
	return m.google != nil && m.google.Ready()
}

// LoginWithGoogle runs the Google consent prompt and exchanges the result.
// A dismissed prompt returns (nil, nil).
func (m *Manager) LoginWithGoogle(ctx context.Context) (*identity.Session, error) {
	if !m.IsGoogleAuthReady() {
		return nil, ErrGoogleAuthNotReady
	}
	return m.google.SignIn(ctx)
}

// UpdateProfile changes the signed-in user's display name and photo
func (m *Manager) UpdateProfile(ctx context.Context, update identity.ProfileUpdate) (*identity.Session, error) {
	return m.store.UpdateProfile(ctx, update)
}

func requireCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", identity.ErrInvalidCredentials)
	}
	return nil
}
