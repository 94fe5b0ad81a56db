package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	firebaseAuth "firebase.google.com/go/v4/auth"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"gopkg.in/yaml.v3"

	"github.com/otiai10/doggyday/internal/auth"
)

// Default values for FirebaseStore
const (
	DefaultWatchInterval = time.Minute
	DefaultRefreshSkew   = 5 * time.Minute
)

// UserDirectory reads and writes user records with admin privileges.
// *firebaseAuth.Client satisfies it.
type UserDirectory interface {
	GetUser(ctx context.Context, uid string) (*firebaseAuth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *firebaseAuth.UserToUpdate) (*firebaseAuth.UserRecord, error)
}

// persistedSession is the on-disk form of a signed-in identity
type persistedSession struct {
	UID          string `yaml:"uid"`
	IDToken      string `yaml:"id_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// FirebaseStore is the Session Store backed by Firebase Authentication.
//
// Tokens are verified with the Admin SDK, refreshed through the Secure Token
// service and optionally persisted so a later process resumes the session.
type FirebaseStore struct {
	n         *notifier
	accounts  accountsAPI
	verifier  auth.TokenVerifier
	directory UserDirectory
	refresher TokenRefresher
	statePath string
	interval  time.Duration
	skew      time.Duration
	now       func() time.Time
	logger    *slog.Logger

	// mu orders every change of current with its state file write and
	// notification. changes counts them.
	mu      sync.Mutex
	current *Session
	changes uint64
}

// Ensure FirebaseStore implements Store interface
var _ Store = (*FirebaseStore)(nil)

// FirebaseStoreOption configures a FirebaseStore
type FirebaseStoreOption func(*FirebaseStore)

// WithUserDirectory enables provider data lookups and profile updates
func WithUserDirectory(d UserDirectory) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		s.directory = d
	}
}

// WithTokenRefresher sets how expiring ID tokens are renewed
func WithTokenRefresher(r TokenRefresher) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		s.refresher = r
	}
}

// WithStatePath persists the session to path. An empty path disables persistence.
func WithStatePath(path string) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		s.statePath = path
	}
}

// WithWatchInterval sets how often Watch re-checks the session
func WithWatchInterval(d time.Duration) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRefreshSkew sets how long before expiry a token is refreshed
func WithRefreshSkew(d time.Duration) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		s.skew = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		s.now = now
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) FirebaseStoreOption {
	return func(s *FirebaseStore) {
		s.logger = l
	}
}

// NewFirebaseStore creates a FirebaseStore. Nothing is published until Restore is called.
func NewFirebaseStore(svc *identitytoolkit.Service, verifier auth.TokenVerifier, opts ...FirebaseStoreOption) *FirebaseStore {
	return newFirebaseStore(toolkitAccounts{svc: svc}, verifier, opts...)
}

func newFirebaseStore(accounts accountsAPI, verifier auth.TokenVerifier, opts ...FirebaseStoreOption) *FirebaseStore {
	s := &FirebaseStore{
		n:        newNotifier(),
		accounts: accounts,
		verifier: verifier,
		interval: DefaultWatchInterval,
		skew:     DefaultRefreshSkew,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe implements Store
func (s *FirebaseStore) Subscribe() (<-chan *Session, func()) {
	return s.n.subscribe()
}

// Current returns the last published identity
func (s *FirebaseStore) Current() *Session {
	return s.n.snapshot()
}

// Restore resolves the initial identity from the persisted state and publishes it.
// A persisted session whose token can neither be verified nor refreshed
// resolves to signed out; the returned error explains why.
//
// A sign-in or sign-out that lands while Restore is still resolving wins;
// the restored result is then dropped.
func (s *FirebaseStore) Restore(ctx context.Context) error {
	_, since := s.currentSince()

	saved, err := s.load()
	if err != nil {
		s.logger.Warn("failed to load persisted session", "path", s.statePath, "error", err)
	}
	if saved == nil {
		s.commit(since, nil, nil)
		return nil
	}

	sess, err := s.establish(ctx, &tokenGrant{
		LocalID:      saved.UID,
		IDToken:      saved.IDToken,
		RefreshToken: saved.RefreshToken,
	})
	if err == nil && !s.expiringSoon(sess) {
		s.commit(since, sess, nil)
		return nil
	}

	sess, err = s.refresh(ctx, saved.RefreshToken)
	if err != nil {
		s.logger.Info("persisted session could not be resumed", "uid", saved.UID, "error", err)
		var file func()
		if !errors.Is(err, ErrNetwork) {
			file = s.clear
		}
		if !s.commit(since, nil, file) {
			return nil
		}
		return err
	}
	s.commit(since, sess, func() { s.persist(sess) })
	return nil
}

// Watch keeps the session alive until ctx is done. Tokens close to expiry are
// refreshed. A token that is rejected and cannot be refreshed signs the user out.
func (s *FirebaseStore) Watch(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check runs one Watch iteration
func (s *FirebaseStore) check(ctx context.Context) {
	cur, since := s.currentSince()
	if cur == nil {
		return
	}

	if !s.expiringSoon(cur) {
		_, err := s.verifier.VerifyIDToken(ctx, cur.IDToken)
		if err == nil || !auth.IsTokenRejected(err) {
			return
		}
		s.logger.Info("session token rejected", "uid", cur.UID, "error", err)
	}

	next, err := s.refresh(ctx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			s.logger.Warn("token refresh failed, will retry", "uid", cur.UID, "error", err)
			return
		}
		if s.commit(since, nil, s.clear) {
			s.logger.Info("session ended", "uid", cur.UID, "error", err)
		}
		return
	}
	if !s.commit(since, next, func() { s.persist(next) }) {
		s.logger.Debug("session changed during refresh, dropping result", "uid", cur.UID)
	}
}

// SignInWithPassword implements Store
func (s *FirebaseStore) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	grant, err := s.accounts.signIn(ctx, email, password)
	if err != nil {
		return nil, classify(err)
	}
	return s.complete(ctx, grant)
}

// CreateAccount implements Store
func (s *FirebaseStore) CreateAccount(ctx context.Context, email, password string) (*Session, error) {
	grant, err := s.accounts.signUp(ctx, email, password)
	if err != nil {
		return nil, classify(err)
	}
	return s.complete(ctx, grant)
}

// SignInWithCredential implements Store
func (s *FirebaseStore) SignInWithCredential(ctx context.Context, cred Credential) (*Session, error) {
	if cred.IDToken == "" && cred.AccessToken == "" {
		return nil, newAuthError(ErrInvalidCredentials, "INVALID_IDP_RESPONSE", "credential carries no token")
	}
	grant, err := s.accounts.signInWithIdp(ctx, cred)
	if err != nil {
		return nil, classify(err)
	}
	return s.complete(ctx, grant)
}

// SignOut implements Store. Only local state is discarded.
func (s *FirebaseStore) SignOut(ctx context.Context) error {
	s.set(nil, s.clear)
	return nil
}

// UpdateProfile implements Store
func (s *FirebaseStore) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Session, error) {
	cur, _ := s.currentSince()
	if cur == nil {
		return nil, ErrNoSession
	}
	if s.directory == nil {
		return nil, newAuthError(ErrUnknownAuth, "", "profile updates require admin credentials")
	}

	params := &firebaseAuth.UserToUpdate{}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}
	if update.PhotoURL != nil {
		params = params.PhotoURL(*update.PhotoURL)
	}
	if _, err := s.directory.UpdateUser(ctx, cur.UID, params); err != nil {
		return nil, classify(fmt.Errorf("failed to update user %s: %w", cur.UID, err))
	}

	// The profile lands on whatever token pair is current by now, as long
	// as the same user is still signed in.
	var updated *Session
	ok := s.swap(func(now *Session) (*Session, bool) {
		if now == nil || now.UID != cur.UID {
			return nil, false
		}
		updated = now.Copy()
		if update.DisplayName != nil {
			updated.DisplayName = *update.DisplayName
		}
		if update.PhotoURL != nil {
			updated.PhotoURL = *update.PhotoURL
		}
		return updated, true
	})
	if !ok {
		return nil, ErrNoSession
	}
	return updated.Copy(), nil
}

// complete turns a fresh grant into the current session
func (s *FirebaseStore) complete(ctx context.Context, grant *tokenGrant) (*Session, error) {
	sess, err := s.establish(ctx, grant)
	if err != nil {
		return nil, classify(err)
	}
	s.set(sess, func() { s.persist(sess) })
	return sess.Copy(), nil
}

// refresh renews the token pair and builds the resulting session
func (s *FirebaseStore) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if s.refresher == nil {
		return nil, newAuthError(ErrInvalidCredentials, "TOKEN_EXPIRED", "token expired and no refresher is configured")
	}
	idToken, newRefresh, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, classify(err)
	}
	sess, err := s.establish(ctx, &tokenGrant{IDToken: idToken, RefreshToken: newRefresh})
	if err != nil {
		return nil, classify(err)
	}
	return sess, nil
}

// establish verifies the grant's ID token and assembles a Session from its claims
func (s *FirebaseStore) establish(ctx context.Context, grant *tokenGrant) (*Session, error) {
	claims, err := s.verifier.VerifyIDToken(ctx, grant.IDToken)
	if err != nil {
		if auth.IsTokenRejected(err) {
			return nil, &AuthError{Kind: ErrInvalidCredentials, Code: "INVALID_ID_TOKEN", Message: err.Error(), Err: err}
		}
		return nil, err
	}

	sess := &Session{
		UID:           claims.UID,
		Email:         firstNonEmpty(claims.Email, grant.Email),
		DisplayName:   firstNonEmpty(claims.Name, grant.DisplayName),
		PhotoURL:      firstNonEmpty(claims.Picture, grant.PhotoURL),
		EmailVerified: claims.EmailVerified || grant.EmailVerified,
		IDToken:       grant.IDToken,
		RefreshToken:  grant.RefreshToken,
		ExpiresAt:     claims.ExpiresAt,
	}
	if claims.ProviderID != "" {
		sess.ProviderData = []ProviderInfo{{
			ProviderID:  claims.ProviderID,
			UID:         claims.UID,
			Email:       sess.Email,
			DisplayName: sess.DisplayName,
		}}
	}

	if s.directory != nil {
		if rec, err := s.directory.GetUser(ctx, sess.UID); err != nil {
			s.logger.Warn("failed to load user record", "uid", sess.UID, "error", err)
		} else {
			applyUserRecord(sess, rec)
		}
	}
	return sess, nil
}

// applyUserRecord overlays the authoritative profile from the user directory
func applyUserRecord(sess *Session, rec *firebaseAuth.UserRecord) {
	if rec == nil {
		return
	}
	if rec.UserInfo != nil {
		sess.Email = firstNonEmpty(rec.Email, sess.Email)
		sess.DisplayName = rec.DisplayName
		sess.PhotoURL = rec.PhotoURL
	}
	sess.EmailVerified = rec.EmailVerified

	if len(rec.ProviderUserInfo) == 0 {
		return
	}
	sess.ProviderData = make([]ProviderInfo, 0, len(rec.ProviderUserInfo))
	for _, info := range rec.ProviderUserInfo {
		if info == nil {
			continue
		}
		sess.ProviderData = append(sess.ProviderData, ProviderInfo{
			ProviderID:  info.ProviderID,
			UID:         info.UID,
			Email:       info.Email,
			DisplayName: info.DisplayName,
		})
	}
}

func (s *FirebaseStore) expiringSoon(sess *Session) bool {
	if sess.ExpiresAt.IsZero() {
		return false
	}
	return sess.Expired(s.now().Add(s.skew))
}

// currentSince returns the current session and the change count it belongs to
func (s *FirebaseStore) currentSince() (*Session, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Copy(), s.changes
}

// swap replaces the current session with what next returns and notifies
// subscribers. next runs under the lock; returning false leaves everything
// untouched.
func (s *FirebaseStore) swap(next func(cur *Session) (*Session, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := next(s.current.Copy())
	if !ok {
		return false
	}
	s.current = sess.Copy()
	s.changes++
	s.n.publish(sess)
	return true
}

// set makes sess current. file, when non-nil, updates the state file in
// step with the change.
func (s *FirebaseStore) set(sess *Session, file func()) {
	s.swap(func(*Session) (*Session, bool) {
		if file != nil {
			file()
		}
		return sess, true
	})
}

// commit is set, unless the session changed after since was read
func (s *FirebaseStore) commit(since uint64, sess *Session, file func()) bool {
	return s.swap(func(*Session) (*Session, bool) {
		if s.changes != since {
			return nil, false
		}
		if file != nil {
			file()
		}
		return sess, true
	})
}

func (s *FirebaseStore) load() (*persistedSession, error) {
	if s.statePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var saved persistedSession
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if saved.IDToken == "" && saved.RefreshToken == "" {
		return nil, nil
	}
	return &saved, nil
}

func (s *FirebaseStore) persist(sess *Session) {
	if s.statePath == "" || sess == nil {
		return
	}
	data, err := yaml.Marshal(&persistedSession{
		UID:          sess.UID,
		IDToken:      sess.IDToken,
		RefreshToken: sess.RefreshToken,
	})
	if err != nil {
		s.logger.Warn("failed to encode session", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0o700); err != nil {
		s.logger.Warn("failed to create session directory", "path", s.statePath, "error", err)
		return
	}
	if err := os.WriteFile(s.statePath, data, 0o600); err != nil {
		s.logger.Warn("failed to write session file", "path", s.statePath, "error", err)
	}
}

func (s *FirebaseStore) clear() {
	if s.statePath == "" {
		return
	}
	if err := os.Remove(s.statePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove session file", "path", s.statePath, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
