package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/otiai10/doggyday/internal/api"
	"github.com/otiai10/doggyday/internal/auth"
	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/config"
	"github.com/otiai10/doggyday/internal/identity"
	"github.com/otiai10/doggyday/internal/metrics"
	"github.com/otiai10/doggyday/internal/navigation"
	"github.com/otiai10/doggyday/internal/oauth"
	"github.com/otiai10/doggyday/internal/session"
	"github.com/otiai10/doggyday/internal/storage"
	"github.com/otiai10/doggyday/internal/store"
	"github.com/otiai10/doggyday/internal/user"
)

// ShutdownTimeout bounds the graceful shutdown of Serve
const ShutdownTimeout = 10 * time.Second

// SessionStore is the Session Store the app runs on.
// *identity.FirebaseStore satisfies it.
type SessionStore interface {
	identity.Store
	Restore(ctx context.Context) error
	Watch(ctx context.Context) error
}

var _ SessionStore = (*identity.FirebaseStore)(nil)

// App is the main application orchestrator.
// It owns the device session, the navigator and its guard, and the
// optional booking backends, and exposes them over HTTP.
type App struct {
	config   *config.Config
	sessions SessionStore
	manager  *session.Manager
	nav      *navigation.Stack
	platform oauth.Platform
	prompter oauth.Prompter
	flow     *oauth.Flow

	docs     store.Documents
	objects  storage.Objects
	verifier auth.TokenVerifier
	users    user.Repository
	payments api.PaymentGateway
	book     *booking.Book
	checker  *booking.Checker

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	staticFS fs.FS
	logger   *slog.Logger
	closers  []io.Closer
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithDocuments enables the booking API on docs
func WithDocuments(docs store.Documents) Option {
	return func(a *App) {
		a.docs = docs
	}
}

// WithObjects enables dog photo uploads
func WithObjects(objects storage.Objects) Option {
	return func(a *App) {
		a.objects = objects
	}
}

// WithTokenVerifier sets the verifier guarding the booking API.
// Without it only the device session routes are served.
func WithTokenVerifier(v auth.TokenVerifier) Option {
	return func(a *App) {
		a.verifier = v
	}
}

// WithUserRepository sets the profile store
func WithUserRepository(repo user.Repository) Option {
	return func(a *App) {
		a.users = repo
	}
}

// WithPayments enables Stripe checkout
func WithPayments(p api.PaymentGateway) Option {
	return func(a *App) {
		a.payments = p
	}
}

// WithPrompter replaces the browser consent prompter
func WithPrompter(p oauth.Prompter) Option {
	return func(a *App) {
		a.prompter = p
	}
}

// WithStaticFS serves the UI shell from fsys
func WithStaticFS(fsys fs.FS) Option {
	return func(a *App) {
		a.staticFS = fsys
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// NewApp creates a new application instance over the given Session Store.
//
// Google sign-in is enabled only when the configured platform has a client
// ID. The booking API is enabled by WithDocuments together with
// WithTokenVerifier and WithUserRepository.
func NewApp(cfg *config.Config, sessions SessionStore, opts ...Option) *App {
	a := &App{
		config:   cfg,
		sessions: sessions,
		nav:      navigation.NewStack(navigation.RouteHome),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	platform, clientID, err := cfg.OAuth.Resolve()
	a.platform = platform
	if a.prompter == nil {
		a.prompter = oauth.NewBrowserPrompter(platform, cfg.OAuth.Scheme,
			oauth.WithLoopbackPort(cfg.OAuth.LoopbackPort),
			oauth.WithPrompterLogger(a.logger))
	}

	managerOpts := []session.Option{session.WithLogger(a.logger)}
	if err != nil {
		a.logger.Warn("google sign-in disabled", "platform", platform, "error", err)
	} else {
		a.flow = oauth.NewFlow(clientID, a.prompter, sessions, oauth.WithFlowLogger(a.logger))
		managerOpts = append(managerOpts, session.WithGoogleSignIn(a.flow))
	}
	a.manager = session.New(sessions, managerOpts...)

	if a.docs != nil {
		a.checker = booking.NewChecker(a.docs, cfg.Booking.Limits())
		a.book = booking.New(a.docs, booking.WithCapacity(a.checker))
	}

	a.registry, a.metrics = metrics.NewRegistry()
	return a
}

// Start brings the session up without blocking.
//
// The manager subscribes before the store restores, so the first emission
// always ends the loading phase. The guard, the token watcher and the OAuth
// request preparation all run until ctx is done.
func (a *App) Start(ctx context.Context) {
	a.manager.Start(ctx)

	go func() {
		err := navigation.NewGuard(a.nav, a.manager, a.logger).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("navigation guard stopped", "error", err)
		}
	}()

	go func() {
		if err := a.sessions.Restore(ctx); err != nil {
			a.logger.Warn("session not restored", "error", err)
		}
		if err := a.sessions.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("session watcher stopped", "error", err)
		}
	}()

	if a.flow != nil {
		go func() {
			if err := a.flow.Prepare(ctx); err != nil {
				a.logger.Warn("google sign-in not prepared", "error", err)
			}
		}()
	}
}

// Ready blocks until the initial session is resolved
func (a *App) Ready(ctx context.Context) (session.State, error) {
	return a.manager.Await(ctx, func(s session.State) bool { return !s.Loading })
}

// Handler returns the HTTP handler serving the app
func (a *App) Handler() http.Handler {
	cfg := api.RouterConfig{
		TokenVerifier:      a.verifier,
		UserRepo:           a.users,
		Book:               a.book,
		Objects:            a.objects,
		CORSAllowedOrigins: a.config.API.GetCORSAllowedOrigins(),
		Metrics:            a.metrics,
		MetricsHandler:     metrics.HandlerFor(a.registry),
		StaticFS:           a.staticFS,
		Logger:             a.logger,
	}
	if a.config.API.DeviceRoutes() {
		cfg.Sessions = a.manager
		cfg.Navigator = a.nav
		cfg.OAuthDebug = a.Diagnose
		if sink, ok := a.prompter.(api.RedirectSink); ok {
			cfg.Redirects = sink
		}
	} else {
		a.logger.Info("device session routes disabled", "addr", a.config.API.Addr, "device", a.config.API.Device)
	}
	if a.checker != nil {
		cfg.Availability = a.checker
	}
	if a.payments != nil && a.config.Billing.Enabled() {
		cfg.Payments = a.payments
		cfg.BillingConfig = &a.config.Billing
	}
	if a.verifier != nil && (a.users == nil || a.book == nil) {
		a.logger.Warn("booking API disabled: requires documents and a user repository")
	}
	return api.NewRouter(cfg)
}

// Serve starts the app and serves HTTP on the configured address until ctx is done
func (a *App) Serve(ctx context.Context) error {
	a.Start(ctx)

	server := api.NewServer(a.config.API.Addr, a.Handler())
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", "addr", server.Addr())
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// Diagnose reports the Google sign-in setup for the debug screen
func (a *App) Diagnose() oauth.Diagnostics {
	return oauth.Diagnose(a.platform, a.config.OAuth.Scheme, a.config.OAuth.ClientIDs(), a.flow)
}

// Session returns the Auth Session Manager
func (a *App) Session() *session.Manager {
	return a.manager
}

// Navigator returns the route stack
func (a *App) Navigator() *navigation.Stack {
	return a.nav
}

// Book returns the booking service, or nil without documents
func (a *App) Book() *booking.Book {
	return a.book
}

// Availability returns the capacity checker, or nil without documents
func (a *App) Availability() *booking.Checker {
	return a.checker
}

// Documents returns the document store, or nil
func (a *App) Documents() store.Documents {
	return a.docs
}

// Objects returns the object store, or nil
func (a *App) Objects() storage.Objects {
	return a.objects
}

// Close releases the prompter and any backend clients
func (a *App) Close() error {
	var errs []error
	if c, ok := a.prompter.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
