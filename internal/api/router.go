package api

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/otiai10/doggyday/internal/auth"
	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/config"
	"github.com/otiai10/doggyday/internal/metrics"
	"github.com/otiai10/doggyday/internal/oauth"
	"github.com/otiai10/doggyday/internal/storage"
	"github.com/otiai10/doggyday/internal/user"
	"github.com/otiai10/doggyday/internal/version"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	// Device session. These routes act for whoever is signed in on this
	// machine and carry no credentials, so leave Sessions nil on any
	// listener reachable from outside it.
	Sessions   SessionManager
	Navigator  Router
	Redirects  RedirectSink             // nil means no app-scheme redirect delivery
	OAuthDebug func() oauth.Diagnostics // nil leaves the debug screen's OAuth section empty

	// Booking API
	TokenVerifier auth.TokenVerifier // nil means no booking API
	UserRepo      user.Repository
	Book          *booking.Book
	Availability  AvailabilitySource // nil means no availability endpoint
	Objects       storage.Objects    // nil means no photo uploads
	Payments      PaymentGateway     // nil means no billing
	BillingConfig *config.BillingConfig

	CORSAllowedOrigins []string
	Metrics            *metrics.Metrics // nil means no request metrics
	MetricsHandler     http.Handler     // served at /metrics when set
	StaticFS           fs.FS            // UI shell; nil serves the API only
	Logger             *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	apiMux := http.NewServeMux()

	registerPublicRoutes(mux)

	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Sessions != nil {
		registerSessionRoutes(apiMux, NewSessionHandler(cfg.Sessions, cfg.Redirects, cfg.Metrics))
		if cfg.Navigator != nil {
			registerNavigationRoutes(apiMux, NewNavigationHandler(cfg.Navigator, cfg.Sessions, cfg.OAuthDebug))
			mux.Handle("/ws", NewStreamHandler(cfg.Sessions, cfg.Navigator, cfg.CORSAllowedOrigins, cfg.Metrics, logger))
		}
	}

	billingEnabled := cfg.Payments != nil && cfg.BillingConfig != nil && cfg.Book != nil && cfg.UserRepo != nil
	var billingHandler *BillingHandler
	if billingEnabled {
		billingHandler = NewBillingHandler(cfg.Payments, cfg.Book, cfg.UserRepo, cfg.BillingConfig, cfg.Metrics, logger)
		// Stripe webhook route (no auth required - uses signature verification)
		registerStripeWebhookRoute(apiMux, billingHandler)
	}

	// Protected routes
	if cfg.TokenVerifier != nil && cfg.UserRepo != nil && cfg.Book != nil {
		protectedMux := http.NewServeMux()
		registerMeRoutes(protectedMux, NewMeHandler(cfg.UserRepo))
		registerBookingRoutes(protectedMux,
			NewBookingHandler(cfg.Book, cfg.Availability, cfg.Objects, cfg.Metrics, logger),
			billingHandler)

		// Apply auth middleware to protected routes
		authHandler := auth.AuthMiddleware(cfg.TokenVerifier)(protectedMux)
		for _, pattern := range []string{
			"/api/me", "/api/me/",
			"/api/dogs", "/api/dogs/",
			"/api/appointments", "/api/appointments/",
			"/api/availability",
		} {
			apiMux.Handle(pattern, authHandler)
		}
	}

	apiMux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "not found", http.StatusNotFound)
	})
	mux.Handle("/api/", JSONContentTypeMiddleware(apiMux))

	var root http.Handler = mux
	if cfg.StaticFS != nil {
		root = WithStaticFiles(mux, NewStaticFileServer(cfg.StaticFS, ""))
	}
	return applyMiddlewareChain(root, cfg, logger)
}

// registerPublicRoutes registers routes that don't require authentication
func registerPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"status":"ok","hash":"%s"}`, version.CommitHash)))
	})
}

// registerSessionRoutes registers the Auth Session Manager routes
func registerSessionRoutes(mux *http.ServeMux, h *SessionHandler) {
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetState(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	post := map[string]http.HandlerFunc{
		"/api/session/login":           h.Login,
		"/api/session/register":        h.Register,
		"/api/session/logout":          h.Logout,
		"/api/session/google":          h.LoginWithGoogle,
		"/api/session/google/redirect": h.DeliverRedirect,
	}
	for pattern, handle := range post {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				handle(w, r)
			default:
				methodNotAllowed(w)
			}
		})
	}

	mux.HandleFunc("/api/session/profile", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			h.UpdateProfile(w, r)
		default:
			methodNotAllowed(w)
		}
	})
}

// registerNavigationRoutes registers the navigator and debug screen routes
func registerNavigationRoutes(mux *http.ServeMux, h *NavigationHandler) {
	mux.HandleFunc("/api/navigation", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetRoute(w, r)
		case http.MethodPost:
			h.Navigate(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/debug/auth", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetAuthDebug(w, r)
		default:
			methodNotAllowed(w)
		}
	})
}

// registerMeRoutes registers user profile routes
func registerMeRoutes(mux *http.ServeMux, h *MeHandler) {
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetProfile(w, r)
		case http.MethodPatch:
			h.UpdateProfile(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/me/providers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetProviders(w, r)
		default:
			methodNotAllowed(w)
		}
	})
}

// registerBookingRoutes registers dog and appointment routes. b may be nil.
func registerBookingRoutes(mux *http.ServeMux, h *BookingHandler, b *BillingHandler) {
	mux.HandleFunc("/api/dogs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListDogs(w, r)
		case http.MethodPost:
			h.CreateDog(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/dogs/", func(w http.ResponseWriter, r *http.Request) {
		id, sub := extractIDFromPath(r.URL.Path, "/api/dogs/")
		if id == "" {
			writeError(w, "invalid path", http.StatusBadRequest)
			return
		}

		switch {
		case sub == "" && r.Method == http.MethodGet:
			h.GetDog(w, r, id)
		case sub == "photo" && r.Method == http.MethodPut:
			h.UploadDogPhoto(w, r, id)
		case sub == "photo" && r.Method == http.MethodGet:
			h.GetDogPhoto(w, r, id)
		case sub == "appointments" && r.Method == http.MethodGet:
			h.DogAppointments(w, r, id)
		case sub == "" || sub == "photo" || sub == "appointments":
			methodNotAllowed(w)
		default:
			writeError(w, "not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/api/appointments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListAppointments(w, r)
		case http.MethodPost:
			h.CreateAppointment(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/appointments/", func(w http.ResponseWriter, r *http.Request) {
		id, sub := extractIDFromPath(r.URL.Path, "/api/appointments/")
		if id == "" {
			writeError(w, "invalid path", http.StatusBadRequest)
			return
		}

		switch sub {
		case "":
			switch r.Method {
			case http.MethodGet:
				h.GetAppointment(w, r, id)
			case http.MethodPatch:
				h.UpdateAppointment(w, r, id)
			case http.MethodDelete:
				h.DeleteAppointment(w, r, id)
			default:
				methodNotAllowed(w)
			}
		case "checkout":
			if b == nil {
				writeError(w, "billing is not configured", http.StatusNotFound)
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			b.CreateCheckoutSession(w, r, id)
		default:
			writeError(w, "not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/api/availability", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetAvailability(w, r)
		default:
			methodNotAllowed(w)
		}
	})
}

// registerStripeWebhookRoute registers the Stripe webhook route (no auth required)
func registerStripeWebhookRoute(mux *http.ServeMux, h *BillingHandler) {
	mux.HandleFunc("/api/webhooks/stripe", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.StripeWebhook(w, r)
		default:
			methodNotAllowed(w)
		}
	})
}

// applyMiddlewareChain wraps a handler with the standard middleware stack
func applyMiddlewareChain(h http.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	middlewares := []Middleware{
		NewRecoveryMiddleware(logger),
		NewLoggingMiddleware(logger),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, NewMetricsMiddleware(cfg.Metrics))
	}
	middlewares = append(middlewares, NewConfigurableCORSMiddleware(CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}))

	return Chain(middlewares...)(h)
}
