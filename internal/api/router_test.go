package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/otiai10/doggyday/internal/version"
)

func TestNewRouter_Health(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)

	resp := decodeBody[map[string]string](t, rec)
	if resp["status"] != "ok" || resp["hash"] != version.CommitHash {
		t.Errorf("health = %v", resp)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q, want Prometheus text format", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), `doggyday_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Error("health request should be counted")
	}

	noMetrics := newTestEnv(t, func(cfg *RouterConfig) {
		cfg.Metrics = nil
		cfg.MetricsHandler = nil
	})
	expectStatus(t, noMetrics.do(t, http.MethodGet, "/metrics", "", nil), http.StatusNotFound)
}

func TestNewRouter_UnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/kennels", "", nil)
	expectStatus(t, rec, http.StatusNotFound)
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != "not found" {
		t.Errorf("error = %q", resp.Error)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestNewRouter_AuthDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *RouterConfig) { cfg.TokenVerifier = nil })

	// Device session routes stay available without the booking API.
	expectStatus(t, env.do(t, http.MethodGet, "/api/session", "", nil), http.StatusOK)

	for _, path := range []string{"/api/me", "/api/dogs", "/api/appointments", "/api/availability"} {
		t.Run(path, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodGet, path, ownerToken, nil), http.StatusNotFound)
		})
	}
}

func TestNewRouter_NoNavigator(t *testing.T) {
	env := newTestEnv(t, func(cfg *RouterConfig) { cfg.Navigator = nil })

	expectStatus(t, env.do(t, http.MethodGet, "/api/navigation", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/debug/auth", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/ws", "", nil), http.StatusNotFound)
}

func TestNewRouter_PublicListenerHasNoDeviceRoutes(t *testing.T) {
	env := newTestEnv(t, func(cfg *RouterConfig) {
		cfg.Sessions = nil
		cfg.Navigator = nil
	})

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/session", nil},
		{http.MethodPost, "/api/session/login", CredentialsRequest{Email: "a@b.c", Password: "pw"}},
		{http.MethodPost, "/api/session/logout", nil},
		{http.MethodPatch, "/api/session/profile", map[string]string{"displayName": "Mallory"}},
		{http.MethodGet, "/api/navigation", nil},
		{http.MethodGet, "/api/debug/auth", nil},
		{http.MethodGet, "/ws", nil},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			expectStatus(t, env.do(t, tc.method, tc.path, "", tc.body), http.StatusNotFound)
		})
	}
	// the booking API still answers behind its Bearer check
	expectStatus(t, env.do(t, http.MethodGet, "/api/dogs", "", nil), http.StatusUnauthorized)
}

func TestNewRouter_CORS(t *testing.T) {
	env := newTestEnv(t, func(cfg *RouterConfig) {
		cfg.CORSAllowedOrigins = []string{"https://doggyday.app"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/dogs", nil)
	req.Header.Set("Origin", "https://doggyday.app")
	rec := env.serve(req)
	expectStatus(t, rec, http.StatusNoContent)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://doggyday.app" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewRouter_StaticFiles(t *testing.T) {
	shell := fstest.MapFS{
		"index.html": {Data: []byte("<html>doggyday</html>")},
		"app.js":     {Data: []byte("console.log('woof')")},
	}
	env := newTestEnv(t, func(cfg *RouterConfig) { cfg.StaticFS = shell })

	tests := []struct {
		path     string
		wantBody string
	}{
		{"/app.js", "console.log('woof')"},
		{"/profile", "<html>doggyday</html>"},
		{"/login", "<html>doggyday</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "", nil)
			expectStatus(t, rec, http.StatusOK)
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	// API routes are not swallowed by the shell.
	expectStatus(t, env.do(t, http.MethodGet, "/api/session", "", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/health", "", nil), http.StatusOK)
}
