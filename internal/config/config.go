// Package config loads DoggyDay settings from an optional YAML file and
// DOGGYDAY_* environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/oauth"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "DOGGYDAY_"

// Config represents the application configuration
type Config struct {
	Firebase FirebaseConfig `yaml:"firebase" envPrefix:"FIREBASE_"`
	OAuth    OAuthConfig    `yaml:"oauth" envPrefix:"OAUTH_"`
	Session  SessionConfig  `yaml:"session" envPrefix:"SESSION_"`
	API      APIConfig      `yaml:"api" envPrefix:"API_"`
	Billing  BillingConfig  `yaml:"billing" envPrefix:"BILLING_"`
	Booking  BookingConfig  `yaml:"booking" envPrefix:"BOOKING_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

// FirebaseConfig points at the Firebase project backing auth, Firestore and Storage
type FirebaseConfig struct {
	ProjectID     string `yaml:"project_id" env:"PROJECT_ID"`
	APIKey        string `yaml:"api_key" env:"API_KEY"`   // Web API key for client sign-in
	Database      string `yaml:"database" env:"DATABASE"` // Firestore database ID
	Credentials   string `yaml:"credentials" env:"CREDENTIALS"`
	StorageBucket string `yaml:"storage_bucket" env:"STORAGE_BUCKET"` // empty uses <project>.appspot.com
	TenantID      string `yaml:"tenant_id" env:"TENANT_ID"`
	CheckRevoked  bool   `yaml:"check_revoked" env:"CHECK_REVOKED"`
}

// Validate checks if the Firebase configuration is valid
func (c *FirebaseConfig) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("firebase.project_id is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("firebase.api_key is required")
	}
	return nil
}

// OAuthConfig holds the Google sign-in client of each platform
type OAuthConfig struct {
	Platform        string `yaml:"platform" env:"PLATFORM"` // "ios" | "android" | "web"
	Scheme          string `yaml:"scheme" env:"SCHEME"`     // app URI scheme for native redirects
	IOSClientID     string `yaml:"ios_client_id" env:"IOS_CLIENT_ID"`
	AndroidClientID string `yaml:"android_client_id" env:"ANDROID_CLIENT_ID"`
	WebClientID     string `yaml:"web_client_id" env:"WEB_CLIENT_ID"`
	LoopbackPort    int    `yaml:"loopback_port" env:"LOOPBACK_PORT"` // 0 picks a free port
}

// ClientIDs returns the client IDs of all platforms
func (c *OAuthConfig) ClientIDs() oauth.ClientIDs {
	return oauth.ClientIDs{IOS: c.IOSClientID, Android: c.AndroidClientID, Web: c.WebClientID}
}

// Resolve returns the running platform and its client ID.
// It fails when the platform has no client ID, which leaves Google
// sign-in unavailable.
func (c *OAuthConfig) Resolve() (oauth.Platform, string, error) {
	p, err := oauth.ParsePlatform(c.Platform)
	if err != nil {
		return "", "", err
	}
	id, err := c.ClientIDs().Resolve(p)
	if err != nil {
		return p, "", err
	}
	return p, id, nil
}

// Validate checks if the OAuth configuration is valid
func (c *OAuthConfig) Validate() error {
	p, err := oauth.ParsePlatform(c.Platform)
	if err != nil {
		return fmt.Errorf("oauth.platform: %w", err)
	}
	if p.Native() && c.Scheme == "" {
		return fmt.Errorf("oauth.scheme is required for %s", p)
	}
	if c.LoopbackPort < 0 || c.LoopbackPort > 65535 {
		return fmt.Errorf("oauth.loopback_port %d is out of range", c.LoopbackPort)
	}
	return nil
}

// SessionConfig controls where the signed-in session is kept between runs
type SessionConfig struct {
	StatePath     string        `yaml:"state_path" env:"STATE_PATH"`
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL"`
}

// Validate checks if the session configuration is valid
func (c *SessionConfig) Validate() error {
	if c.WatchInterval < 0 {
		return fmt.Errorf("session.watch_interval must not be negative")
	}
	return nil
}

// APIConfig represents the HTTP server configuration
type APIConfig struct {
	Addr               string `yaml:"addr" env:"ADDR"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	StaticDir          string `yaml:"static_dir" env:"STATIC_DIR"` // UI shell assets, optional
	// Device controls the session, navigation and stream routes that drive
	// this machine's signed-in user: "auto" (loopback addr only), "on" or "off".
	Device string `yaml:"device" env:"DEVICE"`
}

// Validate checks if the API configuration is valid
func (c *APIConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	switch c.Device {
	case "", "auto", "on", "off":
	default:
		return fmt.Errorf("api.device must be auto, on or off, got %q", c.Device)
	}
	return nil
}

// DeviceRoutes reports whether the device session routes should be served.
// They carry no credentials of their own, so auto only enables them when
// Addr binds a loopback interface.
func (c *APIConfig) DeviceRoutes() bool {
	switch c.Device {
	case "on":
		return true
	case "off":
		return false
	}
	return isLoopback(c.Addr)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// GetCORSAllowedOrigins parses the comma separated origin list
func (c *APIConfig) GetCORSAllowedOrigins() []string {
	if c == nil || c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// BillingConfig represents Stripe payment settings
type BillingConfig struct {
	SecretKey     string           `yaml:"secret_key" env:"SECRET_KEY"`
	WebhookSecret string           `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	Currency      string           `yaml:"currency" env:"CURRENCY"`
	Prices        map[string]int64 `yaml:"prices" env:"PRICES"` // service -> amount in the smallest unit
	SuccessURL    string           `yaml:"success_url" env:"SUCCESS_URL"`
	CancelURL     string           `yaml:"cancel_url" env:"CANCEL_URL"`
}

// Enabled reports whether payments are configured
func (c *BillingConfig) Enabled() bool {
	return c.SecretKey != ""
}

// Validate checks if the billing configuration is valid
func (c *BillingConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("billing.webhook_secret is required")
	}
	if c.SuccessURL == "" || c.CancelURL == "" {
		return fmt.Errorf("billing.success_url and billing.cancel_url are required")
	}
	for service, amount := range c.Prices {
		if !booking.Service(service).Valid() {
			return fmt.Errorf("billing.prices: unknown service %q", service)
		}
		if amount <= 0 {
			return fmt.Errorf("billing.prices: %s must be positive", service)
		}
	}
	return nil
}

// Amounts returns the prices keyed by service
func (c *BillingConfig) Amounts() map[booking.Service]int64 {
	out := make(map[booking.Service]int64, len(c.Prices))
	for service, amount := range c.Prices {
		out[booking.Service(service)] = amount
	}
	return out
}

// BookingConfig represents daycare capacity settings
type BookingConfig struct {
	// DailyCapacity maps service to dogs per day. Services left out use
	// booking.DefaultLimits; 0 means no cap.
	DailyCapacity map[string]int `yaml:"daily_capacity" env:"DAILY_CAPACITY"`
}

// Validate checks if the booking configuration is valid
func (c *BookingConfig) Validate() error {
	for service, n := range c.DailyCapacity {
		if !booking.Service(service).Valid() {
			return fmt.Errorf("booking.daily_capacity: unknown service %q", service)
		}
		if n < 0 {
			return fmt.Errorf("booking.daily_capacity: %s must not be negative", service)
		}
	}
	return nil
}

// Limits returns the capacity keyed by service
func (c *BookingConfig) Limits() map[booking.Service]booking.Limits {
	out := make(map[booking.Service]booking.Limits, len(c.DailyCapacity))
	for service, n := range c.DailyCapacity {
		out[booking.Service(service)] = booking.Limits{MaxPerDay: n}
	}
	return out
}

// LogConfig represents logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"FORMAT"` // text | json
}

// Validate checks if the log configuration is valid
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported (supported: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not supported (supported: text, json)", c.Format)
	}
	return nil
}

// Default returns the configuration used before any file or environment is applied
func Default() *Config {
	return &Config{
		OAuth: OAuthConfig{
			Platform: string(oauth.PlatformWeb),
			Scheme:   "doggyday",
		},
		Session: SessionConfig{
			StatePath:     defaultStatePath(),
			WatchInterval: time.Minute,
		},
		API:     APIConfig{Addr: ":8080", Device: "auto"},
		Billing: BillingConfig{Currency: "usd"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "doggyday", "session.yaml")
}

// Load reads configuration from the specified YAML file, then applies
// DOGGYDAY_* environment variables on top. An empty path reads the
// environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return finish(cfg)
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Firebase, &c.OAuth, &c.Session, &c.API, &c.Billing, &c.Booking, &c.Log,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
