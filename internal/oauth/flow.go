package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"

	"github.com/otiai10/doggyday/internal/identity"
)

var (
	// ErrNotPrepared is returned by SignIn before Prepare has completed
	ErrNotPrepared = errors.New("oauth request not prepared")
	// ErrPromptInFlight is returned when a prompt is already showing
	ErrPromptInFlight = errors.New("an OAuth prompt is already in progress")
)

// AccessDeniedGuidance explains the usual cause of access_denied
const AccessDeniedGuidance = `Google returned "access_denied". If the OAuth consent screen is in Testing mode, ` +
	`add your Google account as a test user (Google Cloud Console > APIs & Services > OAuth consent screen > Test users), ` +
	`then try again.`

// Exchanger trades a provider credential for a session. identity.Store satisfies it.
type Exchanger interface {
	SignInWithCredential(ctx context.Context, cred identity.Credential) (*identity.Session, error)
}

// Flow is the OAuth flow orchestrator.
//
// The authorization request is built once by Prepare. Each SignIn consumes
// it and a fresh one (new state and nonce) replaces it when the prompt resolves.
type Flow struct {
	clientID  string
	prompter  Prompter
	exchanger Exchanger
	logger    *slog.Logger

	prepareMu sync.Mutex
	mu        sync.Mutex
	req       *Request
	ready     atomic.Bool
	inFlight  atomic.Bool
}

// FlowOption configures a Flow
type FlowOption func(*Flow)

// WithFlowLogger sets the logger
func WithFlowLogger(l *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = l
	}
}

// NewFlow creates a Flow for the platform-resolved clientID
func NewFlow(clientID string, prompter Prompter, exchanger Exchanger, opts ...FlowOption) *Flow {
	f := &Flow{
		clientID:  clientID,
		prompter:  prompter,
		exchanger: exchanger,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Prepare builds the authorization request. It is idempotent and may be run
// in the background; Ready reports when it has completed.
func (f *Flow) Prepare(ctx context.Context) error {
	f.prepareMu.Lock()
	defer f.prepareMu.Unlock()
	if f.ready.Load() {
		return nil
	}
	if f.clientID == "" {
		return fmt.Errorf("failed to prepare OAuth request: no client ID")
	}

	redirectURI, err := f.prompter.RedirectURI(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare OAuth request: %w", err)
	}

	f.mu.Lock()
	f.req = newRequest(f.clientID, redirectURI)
	f.mu.Unlock()
	f.ready.Store(true)

	f.logger.Info("OAuth request prepared", "redirect_uri", redirectURI)
	return nil
}

// Ready reports whether SignIn can prompt
func (f *Flow) Ready() bool {
	return f.ready.Load()
}

// Request returns a copy of the pending authorization request, or nil before Prepare
func (f *Flow) Request() *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.req == nil {
		return nil
	}
	r := *f.req
	r.Scopes = append([]string(nil), f.req.Scopes...)
	return &r
}

// SignIn prompts for Google consent and exchanges the ID token with the
// Session Store. A dismissed prompt returns (nil, nil).
func (f *Flow) SignIn(ctx context.Context) (*identity.Session, error) {
	if !f.Ready() {
		return nil, ErrNotPrepared
	}
	if !f.inFlight.CompareAndSwap(false, true) {
		return nil, ErrPromptInFlight
	}
	defer f.inFlight.Store(false)

	req := f.Request()
	defer f.regenerate(req.RedirectURI)

	result := f.prompt(ctx, req)
	f.logger.Info("OAuth prompt resolved", "result", result.Type.String(), "reason", result.Reason)

	switch result.Type {
	case ResultCancelled:
		return nil, nil
	case ResultError:
		return nil, resultError(result)
	}

	if err := checkNonce(result.IDToken, req.Nonce); err != nil {
		return nil, err
	}

	cred := identity.GoogleCredential(result.IDToken, result.AccessToken)
	cred.RequestURI = req.RedirectURI
	return f.exchanger.SignInWithCredential(ctx, cred)
}

// prompt runs the prompter and maps its outcome onto exactly one Result
func (f *Flow) prompt(ctx context.Context, req *Request) Result {
	redirect, err := f.prompter.Prompt(ctx, req.AuthURL())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrPrompterClosed) {
			return Result{Type: ResultCancelled}
		}
		return Result{Type: ResultError, Reason: err.Error()}
	}
	return ParseRedirect(redirect, req.State)
}

func (f *Flow) regenerate(redirectURI string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = newRequest(f.clientID, redirectURI)
}

func resultError(r Result) error {
	if r.Reason == ReasonAccessDenied {
		return &identity.AuthError{Kind: identity.ErrOAuthDenied, Code: r.Reason, Message: AccessDeniedGuidance}
	}
	msg := r.Reason
	if r.Description != "" {
		msg += ": " + r.Description
	}
	return &identity.AuthError{Kind: identity.ErrUnknownAuth, Code: r.Reason, Message: msg}
}

// checkNonce matches the token's nonce claim against the request. Tokens
// that are not JWTs, or carry no nonce, are left to Firebase, which
// verifies the signature and audience during the exchange.
func checkNonce(idToken, want string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil
	}
	got, ok := claims["nonce"].(string)
	if ok && got != want {
		return &identity.AuthError{Kind: identity.ErrInvalidCredentials, Code: "INVALID_IDP_RESPONSE", Message: "ID token nonce mismatch"}
	}
	return nil
}
