package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/otiai10/doggyday/internal/identity"
)

// countingStore records how many calls reach the Session Store
type countingStore struct {
	*identity.MemoryStore
	calls atomic.Int32
}

func (c *countingStore) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	c.calls.Add(1)
	return c.MemoryStore.SignInWithPassword(ctx, email, password)
}

func (c *countingStore) CreateAccount(ctx context.Context, email, password string) (*identity.Session, error) {
	c.calls.Add(1)
	return c.MemoryStore.CreateAccount(ctx, email, password)
}

type fakeGoogle struct {
	ready   bool
	session *identity.Session
	err     error
	prompts int
}

func (f *fakeGoogle) Ready() bool { return f.ready }

func (f *fakeGoogle) SignIn(ctx context.Context) (*identity.Session, error) {
	f.prompts++
	return f.session, f.err
}

func newTestManager(t *testing.T, store identity.Store, opts ...Option) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	m := New(store, opts...)
	m.Start(ctx)
	return m
}

func await(t *testing.T, m *Manager, pred func(State) bool) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := m.Await(ctx, pred)
	if err != nil {
		t.Fatalf("Await: %v (last state %+v)", err, s)
	}
	return s
}

func isPhase(p Phase) func(State) bool {
	return func(s State) bool { return s.Phase() == p }
}

func TestManager_LoadingUntilFirstNotification(t *testing.T) {
	store := identity.NewMemoryStore()
	m := newTestManager(t, store)

	if s := m.State(); !s.Loading || s.User != nil || s.Phase() != PhaseInitializing {
		t.Fatalf("expected initializing state, got %+v", s)
	}

	store.Restore(context.Background(), nil)
	await(t, m, isPhase(PhaseUnauthenticated))

	if m.State().Loading {
		t.Error("loading must be false after the first notification")
	}
}

func TestManager_RestoredUserAuthenticates(t *testing.T) {
	store := identity.NewMemoryStore()
	store.Restore(context.Background(), &identity.Session{UID: "owner-1"})
	m := newTestManager(t, store)

	s := await(t, m, isPhase(PhaseAuthenticated))
	if s.User.UID != "owner-1" {
		t.Errorf("expected owner-1, got %+v", s.User)
	}
}

func TestManager_EmptyCredentialsNeverReachStore(t *testing.T) {
	store := &countingStore{MemoryStore: identity.NewMemoryStore()}
	m := newTestManager(t, store)

	tests := []struct {
		name            string
		email, password string
	}{
		{"empty email", "", "secret1"},
		{"blank email", "   ", "secret1"},
		{"empty password", "owner@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Login(context.Background(), tt.email, tt.password); !errors.Is(err, identity.ErrInvalidCredentials) {
				t.Errorf("Login: expected ErrInvalidCredentials, got %v", err)
			}
			if _, err := m.Register(context.Background(), tt.email, tt.password); !errors.Is(err, identity.ErrInvalidCredentials) {
				t.Errorf("Register: expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("expected no store calls, got %d", n)
	}
}

func TestManager_StateFollowsNotificationsOnly(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore()
	store.AddAccount("owner@example.com", "secret1", "Owner")
	store.Restore(ctx, nil)
	m := newTestManager(t, store)
	await(t, m, isPhase(PhaseUnauthenticated))

	user, err := m.Login(ctx, "owner@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	s := await(t, m, isPhase(PhaseAuthenticated))
	if s.User.UID != user.UID {
		t.Errorf("expected uid %s, got %s", user.UID, s.User.UID)
	}

	// An out-of-band change (revoked elsewhere) is reflected without any call.
	store.Publish(nil)
	await(t, m, isPhase(PhaseUnauthenticated))

	if _, err := m.Login(ctx, "owner@example.com", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if m.State().Authenticated() {
		t.Error("a failed login must not change state")
	}
}

func TestManager_RegisterAndLogout(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore()
	store.AddAccount("taken@example.com", "secret1", "")
	store.Restore(ctx, nil)
	m := newTestManager(t, store)

	if _, err := m.Register(ctx, "taken@example.com", "secret2"); !errors.Is(err, identity.ErrEmailAlreadyInUse) {
		t.Errorf("expected ErrEmailAlreadyInUse, got %v", err)
	}
	if _, err := m.Register(ctx, "new@example.com", "123"); !errors.Is(err, identity.ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := m.Register(ctx, "new@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	await(t, m, isPhase(PhaseAuthenticated))

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	await(t, m, isPhase(PhaseUnauthenticated))
}

func TestManager_LoginWithGoogle(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore()

	t.Run("not ready issues no prompt", func(t *testing.T) {
		g := &fakeGoogle{}
		m := newTestManager(t, store, WithGoogleSignIn(g))
		if m.IsGoogleAuthReady() {
			t.Error("expected not ready")
		}
		if _, err := m.LoginWithGoogle(ctx); !errors.Is(err, ErrGoogleAuthNotReady) {
			t.Errorf("expected ErrGoogleAuthNotReady, got %v", err)
		}
		if g.prompts != 0 {
			t.Errorf("expected no prompt, got %d", g.prompts)
		}
	})

	t.Run("no flow configured", func(t *testing.T) {
		m := newTestManager(t, store)
		if _, err := m.LoginWithGoogle(ctx); !errors.Is(err, ErrGoogleAuthNotReady) {
			t.Errorf("expected ErrGoogleAuthNotReady, got %v", err)
		}
	})

	t.Run("cancel is not an error", func(t *testing.T) {
		m := newTestManager(t, store, WithGoogleSignIn(&fakeGoogle{ready: true}))
		user, err := m.LoginWithGoogle(ctx)
		if user != nil || err != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", user, err)
		}
	})

	t.Run("denied carries reason", func(t *testing.T) {
		m := newTestManager(t, store, WithGoogleSignIn(&fakeGoogle{ready: true, err: identity.ErrOAuthDenied}))
		if _, err := m.LoginWithGoogle(ctx); !errors.Is(err, identity.ErrOAuthDenied) {
			t.Errorf("expected ErrOAuthDenied, got %v", err)
		}
	})
}

func TestManager_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore()
	store.AddAccount("owner@example.com", "secret1", "Owner")
	store.Restore(ctx, nil)
	m := newTestManager(t, store)

	if _, err := m.Login(ctx, "owner@example.com", "secret1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	name := "Rex's Human"
	if _, err := m.UpdateProfile(ctx, identity.ProfileUpdate{DisplayName: &name}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	s := await(t, m, func(s State) bool { return s.User != nil && s.User.DisplayName == name })
	if s.Phase() != PhaseAuthenticated {
		t.Errorf("expected authenticated, got %s", s.Phase())
	}
}

func TestManager_SubscribeStopsWithContext(t *testing.T) {
	store := identity.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	m := New(store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m.Start(ctx)

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	if s := <-ch; !s.Loading {
		t.Errorf("expected initial loading state, got %+v", s)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// A state may still be in flight; the channel closes right after.
			if _, ok := <-ch; ok {
				t.Error("expected channel to close after context cancel")
			}
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for channel close")
	}
}

func TestManager_AwaitBeforeStart(t *testing.T) {
	m := New(identity.NewMemoryStore())
	if _, err := m.Await(context.Background(), isPhase(PhaseAuthenticated)); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}
