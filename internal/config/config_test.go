package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/oauth"
)

// setRequiredEnv sets the minimum environment for a valid configuration
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOGGYDAY_FIREBASE_PROJECT_ID", "doggyday-test")
	t.Setenv("DOGGYDAY_FIREBASE_API_KEY", "api-key")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `firebase:
  project_id: doggyday-prod
  api_key: key-from-file
  database: daycare
  storage_bucket: doggyday-prod.appspot.com
oauth:
  platform: ios
  scheme: com.doggyday.app
  ios_client_id: ios-client
  web_client_id: web-client
session:
  watch_interval: 30s
api:
  addr: ":9090"
billing:
  secret_key: sk_test_1
  webhook_secret: whsec_1
  prices:
    daycare: 4500
    grooming: 6000
  success_url: https://doggyday.example/paid
  cancel_url: https://doggyday.example/cancel
booking:
  daily_capacity:
    daycare: 12
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Firebase.ProjectID != "doggyday-prod" || cfg.Firebase.Database != "daycare" {
		t.Errorf("unexpected firebase config: %+v", cfg.Firebase)
	}
	if cfg.OAuth.Scheme != "com.doggyday.app" {
		t.Errorf("OAuth.Scheme = %q", cfg.OAuth.Scheme)
	}
	p, id, err := cfg.OAuth.Resolve()
	if err != nil || p != oauth.PlatformIOS || id != "ios-client" {
		t.Errorf("Resolve() = %s, %s, %v", p, id, err)
	}
	if cfg.Session.WatchInterval != 30*time.Second {
		t.Errorf("Session.WatchInterval = %v", cfg.Session.WatchInterval)
	}
	if cfg.API.Addr != ":9090" {
		t.Errorf("API.Addr = %q", cfg.API.Addr)
	}
	if !cfg.Billing.Enabled() || cfg.Billing.Currency != "usd" {
		t.Errorf("unexpected billing config: %+v", cfg.Billing)
	}
	if cfg.Billing.Amounts()[booking.ServiceGrooming] != 6000 {
		t.Errorf("Amounts() = %v", cfg.Billing.Amounts())
	}
	if cfg.Booking.Limits()[booking.ServiceDaycare].MaxPerDay != 12 {
		t.Errorf("Limits() = %v", cfg.Booking.Limits())
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoad_EnvironmentVariableOverride(t *testing.T) {
	path := writeConfig(t, `firebase:
  project_id: from-file
  api_key: key-from-file
api:
  addr: ":9090"
`)
	t.Setenv("DOGGYDAY_FIREBASE_PROJECT_ID", "from-env")
	t.Setenv("DOGGYDAY_BOOKING_DAILY_CAPACITY", "daycare:5,boarding:2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Firebase.ProjectID != "from-env" {
		t.Errorf("ProjectID = %q, want env value", cfg.Firebase.ProjectID)
	}
	if cfg.Firebase.APIKey != "key-from-file" {
		t.Errorf("APIKey = %q, file value should survive", cfg.Firebase.APIKey)
	}
	if cfg.API.Addr != ":9090" {
		t.Errorf("API.Addr = %q, file value should survive", cfg.API.Addr)
	}
	limits := cfg.Booking.Limits()
	if limits[booking.ServiceDaycare].MaxPerDay != 5 || limits[booking.ServiceBoarding].MaxPerDay != 2 {
		t.Errorf("Limits() = %v", limits)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "firebase: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want error for invalid YAML")
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOGGYDAY_OAUTH_PLATFORM", "android")
	t.Setenv("DOGGYDAY_OAUTH_ANDROID_CLIENT_ID", "android-client")
	t.Setenv("DOGGYDAY_API_ADDR", ":9898")
	t.Setenv("DOGGYDAY_SESSION_WATCH_INTERVAL", "2m")
	t.Setenv("DOGGYDAY_BILLING_PRICES", "daycare:4000")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if cfg.Firebase.ProjectID != "doggyday-test" {
		t.Errorf("Firebase.ProjectID = %q", cfg.Firebase.ProjectID)
	}
	p, id, err := cfg.OAuth.Resolve()
	if err != nil || p != oauth.PlatformAndroid || id != "android-client" {
		t.Errorf("Resolve() = %s, %s, %v", p, id, err)
	}
	if cfg.API.Addr != ":9898" {
		t.Errorf("API.Addr = %q, want %q", cfg.API.Addr, ":9898")
	}
	if cfg.Session.WatchInterval != 2*time.Minute {
		t.Errorf("Session.WatchInterval = %v", cfg.Session.WatchInterval)
	}
	if cfg.Billing.Enabled() {
		t.Error("billing should be disabled without a secret key")
	}
	if cfg.Billing.Prices["daycare"] != 4000 {
		t.Errorf("Billing.Prices = %v", cfg.Billing.Prices)
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.OAuth.Platform != "web" || cfg.OAuth.Scheme != "doggyday" {
		t.Errorf("unexpected OAuth defaults: %+v", cfg.OAuth)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("API.Addr = %q", cfg.API.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Session.WatchInterval != time.Minute {
		t.Errorf("Session.WatchInterval = %v", cfg.Session.WatchInterval)
	}
	if _, _, err := cfg.OAuth.Resolve(); err == nil {
		t.Error("Resolve() should fail without a web client ID")
	}
}

func TestLoad_EmptyPathUsesEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOGGYDAY_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v, want nil", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoadFromEnv_MissingFirebase(t *testing.T) {
	t.Setenv("DOGGYDAY_FIREBASE_PROJECT_ID", "")
	t.Setenv("DOGGYDAY_FIREBASE_API_KEY", "")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "firebase.project_id") {
		t.Errorf("expected firebase.project_id error, got %v", err)
	}
}

func TestFirebaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  FirebaseConfig
		wantErr bool
	}{
		{"valid", FirebaseConfig{ProjectID: "p", APIKey: "k"}, false},
		{"missing project_id", FirebaseConfig{APIKey: "k"}, true},
		{"missing api_key", FirebaseConfig{ProjectID: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("FirebaseConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  OAuthConfig
		wantErr bool
	}{
		{"web without scheme", OAuthConfig{Platform: "web"}, false},
		{"ios with scheme", OAuthConfig{Platform: "ios", Scheme: "doggyday"}, false},
		{"android without scheme", OAuthConfig{Platform: "android"}, true},
		{"unknown platform", OAuthConfig{Platform: "windows"}, true},
		{"bad port", OAuthConfig{Platform: "web", LoopbackPort: 70000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("OAuthConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIConfig_Validate(t *testing.T) {
	if err := (&APIConfig{Addr: ":8080"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&APIConfig{}).Validate(); err == nil {
		t.Error("expected error for empty addr")
	}
	if err := (&APIConfig{Addr: ":8080", Device: "maybe"}).Validate(); err == nil {
		t.Error("expected error for unknown device mode")
	}
}

func TestAPIConfig_DeviceRoutes(t *testing.T) {
	tests := []struct {
		name   string
		config APIConfig
		want   bool
	}{
		{"all interfaces", APIConfig{Addr: ":8080"}, false},
		{"all interfaces auto", APIConfig{Addr: ":8080", Device: "auto"}, false},
		{"wildcard ip", APIConfig{Addr: "0.0.0.0:8080"}, false},
		{"public ip", APIConfig{Addr: "10.0.0.5:8080"}, false},
		{"ipv4 loopback", APIConfig{Addr: "127.0.0.1:8080"}, true},
		{"ipv6 loopback", APIConfig{Addr: "[::1]:8080"}, true},
		{"localhost", APIConfig{Addr: "localhost:8080"}, true},
		{"forced on", APIConfig{Addr: ":8080", Device: "on"}, true},
		{"forced off", APIConfig{Addr: "127.0.0.1:8080", Device: "off"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.DeviceRoutes(); got != tt.want {
				t.Errorf("DeviceRoutes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBillingConfig_Validate(t *testing.T) {
	valid := BillingConfig{
		SecretKey:     "sk_test",
		WebhookSecret: "whsec",
		Prices:        map[string]int64{"daycare": 100},
		SuccessURL:    "https://example.com/ok",
		CancelURL:     "https://example.com/cancel",
	}
	tests := []struct {
		name    string
		mutate  func(*BillingConfig)
		wantErr bool
	}{
		{"valid", func(*BillingConfig) {}, false},
		{"disabled skips checks", func(c *BillingConfig) { *c = BillingConfig{} }, false},
		{"missing webhook secret", func(c *BillingConfig) { c.WebhookSecret = "" }, true},
		{"missing urls", func(c *BillingConfig) { c.CancelURL = "" }, true},
		{"unknown service", func(c *BillingConfig) { c.Prices = map[string]int64{"spa": 1} }, true},
		{"non-positive price", func(c *BillingConfig) { c.Prices = map[string]int64{"daycare": 0} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			c.Prices = map[string]int64{"daycare": 100}
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("BillingConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBookingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  BookingConfig
		wantErr bool
	}{
		{"empty", BookingConfig{}, false},
		{"valid", BookingConfig{DailyCapacity: map[string]int{"daycare": 10, "boarding": 0}}, false},
		{"unknown service", BookingConfig{DailyCapacity: map[string]int{"spa": 1}}, true},
		{"negative", BookingConfig{DailyCapacity: map[string]int{"daycare": -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("BookingConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogConfig_Validate(t *testing.T) {
	if err := (&LogConfig{Level: "debug", Format: "json"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&LogConfig{Level: "verbose", Format: "json"}).Validate(); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := (&LogConfig{Level: "info", Format: "xml"}).Validate(); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestAPIConfig_GetCORSAllowedOrigins(t *testing.T) {
	tests := []struct {
		name     string
		config   *APIConfig
		expected []string
	}{
		{"nil config returns nil", nil, nil},
		{"empty string returns nil", &APIConfig{CORSAllowedOrigins: ""}, nil},
		{"single origin", &APIConfig{CORSAllowedOrigins: "https://example.com"}, []string{"https://example.com"}},
		{"origins with spaces", &APIConfig{CORSAllowedOrigins: "https://example.com, https://app.example.com"}, []string{"https://example.com", "https://app.example.com"}},
		{"wildcard origin", &APIConfig{CORSAllowedOrigins: "*"}, []string{"*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.GetCORSAllowedOrigins()
			if len(result) != len(tt.expected) {
				t.Fatalf("GetCORSAllowedOrigins() returned %d items, expected %d: %v", len(result), len(tt.expected), result)
			}
			for i, origin := range result {
				if origin != tt.expected[i] {
					t.Errorf("GetCORSAllowedOrigins()[%d] = %q, expected %q", i, origin, tt.expected[i])
				}
			}
		})
	}
}
