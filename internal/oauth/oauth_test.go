package oauth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"ios", PlatformIOS, false},
		{" Android ", PlatformAndroid, false},
		{"WEB", PlatformWeb, false},
		{"windows", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlatform(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePlatform(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestClientIDs_Resolve(t *testing.T) {
	ids := ClientIDs{IOS: "ios-id", Web: "web-id"}

	if got, err := ids.Resolve(PlatformIOS); err != nil || got != "ios-id" {
		t.Errorf("Resolve(ios) = %q, %v", got, err)
	}
	if got, err := ids.Resolve(PlatformWeb); err != nil || got != "web-id" {
		t.Errorf("Resolve(web) = %q, %v", got, err)
	}
	if _, err := ids.Resolve(PlatformAndroid); err == nil {
		t.Error("expected error for missing android client ID")
	}
}

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType ResultType
		reason   string
	}{
		{"fragment success", "doggyday://oauthredirect#state=s1&id_token=tok&access_token=at", ResultSuccess, ""},
		{"query success", "http://127.0.0.1:9/oauthredirect?state=s1&id_token=tok", ResultSuccess, ""},
		{"provider error", "doggyday://oauthredirect#error=access_denied", ResultError, ReasonAccessDenied},
		{"wrong state", "doggyday://oauthredirect#state=other&id_token=tok", ResultError, ReasonStateMismatch},
		{"no token", "doggyday://oauthredirect#state=s1", ResultError, ReasonMissingIDToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			got := ParseRedirect(u, "s1")
			if got.Type != tt.wantType || got.Reason != tt.reason {
				t.Errorf("ParseRedirect() = %+v", got)
			}
			if got.Type == ResultSuccess && got.IDToken != "tok" {
				t.Errorf("expected id token 'tok', got %q", got.IDToken)
			}
		})
	}

	if got := ParseRedirect(nil, "s1"); got.Type != ResultCancelled {
		t.Errorf("nil redirect should be cancelled, got %+v", got)
	}
}

func TestRequest_AuthURL(t *testing.T) {
	req := newRequest("client-1", "doggyday://oauthredirect")
	u, err := url.Parse(req.AuthURL())
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "accounts.google.com" {
		t.Errorf("unexpected host %s", u.Host)
	}
	q := u.Query()
	want := map[string]string{
		"client_id":     "client-1",
		"redirect_uri":  "doggyday://oauthredirect",
		"response_type": "id_token",
		"scope":         "profile email",
		"state":         req.State,
		"nonce":         req.Nonce,
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestBrowserPrompter_NativeDeliver(t *testing.T) {
	var opened string
	p := NewBrowserPrompter(PlatformIOS, "doggyday", WithOpener(func(u string) error {
		opened = u
		return nil
	}))
	defer p.Close()

	uri, err := p.RedirectURI(context.Background())
	if err != nil || uri != "doggyday://oauthredirect" {
		t.Fatalf("RedirectURI() = %q, %v", uri, err)
	}

	// Stale redirect from an earlier prompt is discarded.
	_ = p.Deliver("doggyday://oauthredirect#state=old")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Deliver("doggyday://oauthredirect#state=new&id_token=tok")
	}()

	got, err := p.Prompt(context.Background(), "https://accounts.google.com/o/oauth2/auth")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if !strings.Contains(got.Fragment, "state=new") {
		t.Errorf("expected the new redirect, got %s", got)
	}
	if opened == "" {
		t.Error("expected the browser to be opened")
	}
}

func TestBrowserPrompter_NativeRequiresScheme(t *testing.T) {
	p := NewBrowserPrompter(PlatformAndroid, "")
	if _, err := p.RedirectURI(context.Background()); err == nil {
		t.Error("expected error without scheme")
	}
}

func TestBrowserPrompter_Loopback(t *testing.T) {
	var p *BrowserPrompter
	p = NewBrowserPrompter(PlatformWeb, "",
		WithPrompterLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOpener(func(string) error {
			go func() {
				resp, err := http.Get(p.redirect + "/complete?state=s1&id_token=tok")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}),
	)
	defer p.Close()

	uri, err := p.RedirectURI(context.Background())
	if err != nil {
		t.Fatalf("RedirectURI: %v", err)
	}
	if !strings.HasPrefix(uri, "http://127.0.0.1:") || !strings.HasSuffix(uri, RedirectPath) {
		t.Errorf("unexpected redirect URI %s", uri)
	}

	resp, err := http.Get(uri)
	if err != nil {
		t.Fatalf("GET relay page: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("relay page status %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := p.Prompt(ctx, "https://accounts.google.com/o/oauth2/auth")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if res := ParseRedirect(got, "s1"); res.Type != ResultSuccess {
		t.Errorf("expected success, got %+v", res)
	}
}

func TestBrowserPrompter_CloseFailsPendingPrompt(t *testing.T) {
	p := NewBrowserPrompter(PlatformIOS, "doggyday", WithOpener(func(string) error { return nil }))
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Close()
	}()
	if _, err := p.Prompt(context.Background(), "https://example.com"); err != ErrPrompterClosed {
		t.Errorf("expected ErrPrompterClosed, got %v", err)
	}
}
