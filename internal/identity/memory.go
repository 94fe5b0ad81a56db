package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// minPasswordLength mirrors the Firebase Authentication password policy
const minPasswordLength = 6

type memoryAccount struct {
	uid         string
	email       string
	password    string
	displayName string
	photoURL    string
	providers   []ProviderInfo
}

// MemoryStore is an in-process Session Store. It backs offline mode and tests,
// and follows the Firebase rules for account creation and sign-in errors.
type MemoryStore struct {
	n *notifier

	mu       sync.Mutex
	accounts map[string]*memoryAccount // keyed by lower-cased email or provider subject
	current  *Session
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore. Nothing is published until
// Restore is called.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		n:        newNotifier(),
		accounts: make(map[string]*memoryAccount),
	}
}

// AddAccount seeds a password account
func (m *MemoryStore) AddAccount(email, password, displayName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := newPasswordAccount(email, password)
	acct.displayName = displayName
	m.accounts[accountKey(email)] = acct
	return acct.uid
}

// Restore publishes the initial identity: s when non-nil, otherwise signed out
func (m *MemoryStore) Restore(_ context.Context, s *Session) {
	m.mu.Lock()
	m.current = s.Copy()
	m.mu.Unlock()
	m.n.publish(s)
}

// Publish replaces the current identity out of band, the way the hosted
// service does when a token is revoked or a profile changes elsewhere.
func (m *MemoryStore) Publish(s *Session) {
	m.mu.Lock()
	m.current = s.Copy()
	m.mu.Unlock()
	m.n.publish(s)
}

// Current returns the last published identity
func (m *MemoryStore) Current() *Session {
	return m.n.snapshot()
}

// Subscribe implements Store
func (m *MemoryStore) Subscribe() (<-chan *Session, func()) {
	return m.n.subscribe()
}

// SignInWithPassword implements Store
func (m *MemoryStore) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}

	m.mu.Lock()
	acct, ok := m.accounts[accountKey(email)]
	if !ok {
		m.mu.Unlock()
		return nil, newAuthError(ErrUserNotFound, "EMAIL_NOT_FOUND", "EMAIL_NOT_FOUND")
	}
	if acct.password != password {
		m.mu.Unlock()
		return nil, newAuthError(ErrInvalidCredentials, "INVALID_PASSWORD", "INVALID_PASSWORD")
	}
	s := acct.session()
	m.current = s.Copy()
	m.mu.Unlock()

	m.n.publish(s)
	return s, nil
}

// CreateAccount implements Store
func (m *MemoryStore) CreateAccount(ctx context.Context, email, password string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	if len(password) < minPasswordLength {
		return nil, newAuthError(ErrWeakPassword, "WEAK_PASSWORD", "WEAK_PASSWORD : Password should be at least 6 characters")
	}

	m.mu.Lock()
	if _, exists := m.accounts[accountKey(email)]; exists {
		m.mu.Unlock()
		return nil, newAuthError(ErrEmailAlreadyInUse, "EMAIL_EXISTS", "EMAIL_EXISTS")
	}
	acct := newPasswordAccount(email, password)
	m.accounts[accountKey(email)] = acct
	s := acct.session()
	m.current = s.Copy()
	m.mu.Unlock()

	m.n.publish(s)
	return s, nil
}

// SignOut implements Store
func (m *MemoryStore) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classify(err)
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	m.n.publish(nil)
	return nil
}

// SignInWithCredential implements Store. The ID token is decoded without
// verification; its subject and email identify the federated account.
func (m *MemoryStore) SignInWithCredential(ctx context.Context, cred Credential) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	if cred.IDToken == "" && cred.AccessToken == "" {
		return nil, newAuthError(ErrInvalidCredentials, "INVALID_IDP_RESPONSE", "INVALID_IDP_RESPONSE")
	}

	subject, email, name := cred.IDToken, "", ""
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cred.IDToken, claims); err == nil {
		if sub, _ := claims["sub"].(string); sub != "" {
			subject = sub
		}
		email, _ = claims["email"].(string)
		name, _ = claims["name"].(string)
	}

	m.mu.Lock()
	key := cred.ProviderID + ":" + subject
	acct, ok := m.accounts[key]
	if !ok {
		acct = &memoryAccount{
			uid:         uuid.NewString(),
			email:       email,
			displayName: name,
			providers: []ProviderInfo{{
				ProviderID:  cred.ProviderID,
				UID:         subject,
				Email:       email,
				DisplayName: name,
			}},
		}
		m.accounts[key] = acct
	}
	s := acct.session()
	m.current = s.Copy()
	m.mu.Unlock()

	m.n.publish(s)
	return s, nil
}

// UpdateProfile implements Store
func (m *MemoryStore) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	s := m.current.Copy()
	if update.DisplayName != nil {
		s.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		s.PhotoURL = *update.PhotoURL
	}
	for _, acct := range m.accounts {
		if acct.uid == s.UID {
			acct.displayName = s.DisplayName
			acct.photoURL = s.PhotoURL
		}
	}
	m.current = s.Copy()
	m.mu.Unlock()

	m.n.publish(s)
	return s, nil
}

func newPasswordAccount(email, password string) *memoryAccount {
	uid := uuid.NewString()
	return &memoryAccount{
		uid:      uid,
		email:    email,
		password: password,
		providers: []ProviderInfo{{
			ProviderID: ProviderPassword,
			UID:        email,
			Email:      email,
		}},
	}
}

func (a *memoryAccount) session() *Session {
	s := &Session{
		UID:          a.uid,
		Email:        a.email,
		DisplayName:  a.displayName,
		PhotoURL:     a.photoURL,
		ProviderData: make([]ProviderInfo, len(a.providers)),
	}
	copy(s.ProviderData, a.providers)
	return s
}

func accountKey(email string) string {
	return ProviderPassword + ":" + strings.ToLower(strings.TrimSpace(email))
}
