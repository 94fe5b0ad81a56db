// Package metrics holds the Prometheus collectors of the app host.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for DoggyDay
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Session metrics
	AuthAttempts  *prometheus.CounterVec
	StreamClients prometheus.Gauge

	// Booking metrics
	Appointments  *prometheus.CounterVec
	WebhookEvents *prometheus.CounterVec
	PhotoUploads  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doggyday_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "doggyday_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doggyday_auth_attempts_total",
				Help: "Sign-in attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "doggyday_stream_clients",
				Help: "Connected session stream clients",
			},
		),
		Appointments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doggyday_appointments_created_total",
				Help: "Appointments created by service",
			},
			[]string{"service"},
		),
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doggyday_webhook_events_total",
				Help: "Stripe webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		PhotoUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doggyday_photo_uploads_total",
				Help: "Dog photo uploads by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// NewRegistry creates a Prometheus registry carrying the Go and process
// collectors plus a fresh Metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg)
}

// HandlerFor returns an HTTP handler exposing reg
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
