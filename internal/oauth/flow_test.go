package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/otiai10/doggyday/internal/identity"
)

// scriptedPrompter answers each prompt with respond(authURL)
type scriptedPrompter struct {
	redirectURI string
	respond     func(ctx context.Context, authURL *url.URL) (*url.URL, error)

	mu      sync.Mutex
	prompts []*url.URL
}

func (p *scriptedPrompter) RedirectURI(ctx context.Context) (string, error) {
	return p.redirectURI, nil
}

func (p *scriptedPrompter) Prompt(ctx context.Context, authURL string) (*url.URL, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.prompts = append(p.prompts, u)
	p.mu.Unlock()
	return p.respond(ctx, u)
}

type recordingExchanger struct {
	creds []identity.Credential
	err   error
}

func (e *recordingExchanger) SignInWithCredential(ctx context.Context, cred identity.Credential) (*identity.Session, error) {
	e.creds = append(e.creds, cred)
	if e.err != nil {
		return nil, e.err
	}
	return &identity.Session{UID: "google-owner", ProviderData: []identity.ProviderInfo{{ProviderID: cred.ProviderID}}}, nil
}

func idTokenWithNonce(t *testing.T, nonce string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "google-sub",
		"nonce": nonce,
	}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

// successRedirect echoes state and a token carrying the request nonce
func successRedirect(t *testing.T) func(context.Context, *url.URL) (*url.URL, error) {
	return func(_ context.Context, auth *url.URL) (*url.URL, error) {
		q := auth.Query()
		frag := url.Values{}
		frag.Set("state", q.Get("state"))
		frag.Set("id_token", idTokenWithNonce(t, q.Get("nonce")))
		return &url.URL{Scheme: "doggyday", Host: "oauthredirect", Fragment: frag.Encode()}, nil
	}
}

func newTestFlow(p Prompter, e Exchanger) *Flow {
	return NewFlow("web-client-id", p, e, WithFlowLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestFlow_NotPrepared(t *testing.T) {
	f := newTestFlow(&scriptedPrompter{}, &recordingExchanger{})
	if f.Ready() {
		t.Error("expected not ready before Prepare")
	}
	if _, err := f.SignIn(context.Background()); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("expected ErrNotPrepared, got %v", err)
	}
}

func TestFlow_SuccessExchangesOnceAndRegenerates(t *testing.T) {
	ctx := context.Background()
	prompter := &scriptedPrompter{redirectURI: "doggyday://oauthredirect", respond: successRedirect(t)}
	exchanger := &recordingExchanger{}
	f := newTestFlow(prompter, exchanger)

	if err := f.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := f.Prepare(ctx); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	before := f.Request()

	user, err := f.SignIn(ctx)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user == nil || user.UID != "google-owner" {
		t.Errorf("unexpected user: %+v", user)
	}
	if len(exchanger.creds) != 1 {
		t.Fatalf("expected exactly one exchange, got %d", len(exchanger.creds))
	}
	cred := exchanger.creds[0]
	if cred.ProviderID != identity.ProviderGoogle || cred.RequestURI != "doggyday://oauthredirect" {
		t.Errorf("unexpected credential: %+v", cred)
	}

	after := f.Request()
	if after.State == before.State || after.Nonce == before.Nonce {
		t.Error("expected a fresh request after the prompt")
	}

	q := prompter.prompts[0].Query()
	if q.Get("response_type") != ResponseTypeIDToken || q.Get("scope") != "profile email" || q.Get("client_id") != "web-client-id" {
		t.Errorf("unexpected authorization parameters: %v", q)
	}
}

func TestFlow_CancelledDoesNotExchange(t *testing.T) {
	tests := []struct {
		name    string
		respond func(context.Context, *url.URL) (*url.URL, error)
	}{
		{"context cancelled", func(ctx context.Context, _ *url.URL) (*url.URL, error) { return nil, context.Canceled }},
		{"prompter closed", func(ctx context.Context, _ *url.URL) (*url.URL, error) { return nil, ErrPrompterClosed }},
		{"no redirect", func(ctx context.Context, _ *url.URL) (*url.URL, error) { return nil, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := &recordingExchanger{}
			f := newTestFlow(&scriptedPrompter{redirectURI: "doggyday://oauthredirect", respond: tt.respond}, exchanger)
			if err := f.Prepare(context.Background()); err != nil {
				t.Fatalf("Prepare: %v", err)
			}

			user, err := f.SignIn(context.Background())
			if user != nil || err != nil {
				t.Errorf("expected (nil, nil), got (%+v, %v)", user, err)
			}
			if len(exchanger.creds) != 0 {
				t.Error("cancel must not exchange")
			}
		})
	}
}

func TestFlow_Errors(t *testing.T) {
	errorRedirect := func(params string) func(context.Context, *url.URL) (*url.URL, error) {
		return func(_ context.Context, _ *url.URL) (*url.URL, error) {
			return &url.URL{Scheme: "doggyday", Host: "oauthredirect", Fragment: params}, nil
		}
	}

	tests := []struct {
		name     string
		respond  func(context.Context, *url.URL) (*url.URL, error)
		wantKind error
	}{
		{"access denied", errorRedirect("error=access_denied"), identity.ErrOAuthDenied},
		{"other provider error", errorRedirect("error=server_error&error_description=oops"), identity.ErrUnknownAuth},
		{"state mismatch", errorRedirect("state=forged&id_token=x"), identity.ErrUnknownAuth},
		{"nonce mismatch", func(_ context.Context, auth *url.URL) (*url.URL, error) {
			frag := url.Values{}
			frag.Set("state", auth.Query().Get("state"))
			frag.Set("id_token", idTokenWithNonce(t, "replayed"))
			return &url.URL{Scheme: "doggyday", Host: "oauthredirect", Fragment: frag.Encode()}, nil
		}, identity.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := &recordingExchanger{}
			f := newTestFlow(&scriptedPrompter{redirectURI: "doggyday://oauthredirect", respond: tt.respond}, exchanger)
			if err := f.Prepare(context.Background()); err != nil {
				t.Fatalf("Prepare: %v", err)
			}

			_, err := f.SignIn(context.Background())
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("expected %v, got %v", tt.wantKind, err)
			}
			if len(exchanger.creds) != 0 {
				t.Error("errors must not exchange")
			}
		})
	}
}

func TestFlow_AccessDeniedCarriesGuidance(t *testing.T) {
	f := newTestFlow(&scriptedPrompter{
		redirectURI: "doggyday://oauthredirect",
		respond: func(_ context.Context, _ *url.URL) (*url.URL, error) {
			return url.Parse("doggyday://oauthredirect#error=access_denied")
		},
	}, &recordingExchanger{})
	if err := f.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	_, err := f.SignIn(context.Background())
	var authErr *identity.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *identity.AuthError, got %T", err)
	}
	if authErr.Message != AccessDeniedGuidance {
		t.Errorf("expected guidance message, got %q", authErr.Message)
	}
}

func TestFlow_RejectsConcurrentPrompt(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	prompter := &scriptedPrompter{
		redirectURI: "doggyday://oauthredirect",
		respond: func(ctx context.Context, _ *url.URL) (*url.URL, error) {
			close(entered)
			<-release
			return nil, context.Canceled
		},
	}
	f := newTestFlow(prompter, &recordingExchanger{})
	if err := f.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.SignIn(context.Background())
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first prompt never started")
	}
	if _, err := f.SignIn(context.Background()); !errors.Is(err, ErrPromptInFlight) {
		t.Errorf("expected ErrPromptInFlight, got %v", err)
	}
	close(release)
	<-done
}

func TestFlow_OpaqueTokenReachesExchange(t *testing.T) {
	tokenRedirect := func(idToken string) func(context.Context, *url.URL) (*url.URL, error) {
		return func(_ context.Context, auth *url.URL) (*url.URL, error) {
			frag := url.Values{}
			frag.Set("state", auth.Query().Get("state"))
			frag.Set("id_token", idToken)
			return &url.URL{Scheme: "doggyday", Host: "oauthredirect", Fragment: frag.Encode()}, nil
		}
	}
	noNonce, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "google-sub"}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	tests := []struct {
		name    string
		idToken string
	}{
		{"not a JWT", "tok123"},
		{"JWT without nonce", noNonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := &recordingExchanger{}
			f := newTestFlow(&scriptedPrompter{redirectURI: "doggyday://oauthredirect", respond: tokenRedirect(tt.idToken)}, exchanger)
			if err := f.Prepare(context.Background()); err != nil {
				t.Fatalf("Prepare: %v", err)
			}

			user, err := f.SignIn(context.Background())
			if err != nil {
				t.Fatalf("SignIn: %v", err)
			}
			if user == nil {
				t.Fatal("expected the exchanged identity")
			}
			if len(exchanger.creds) != 1 || exchanger.creds[0].IDToken != tt.idToken {
				t.Errorf("expected one exchange of %q, got %+v", tt.idToken, exchanger.creds)
			}
		})
	}
}
