package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.HTTPRequests.WithLabelValues("GET", "/health", "200").Inc()
	m.AuthAttempts.WithLabelValues("password", "success").Inc()
	m.StreamClients.Set(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	values := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}

	if got := values["doggyday_http_requests_total"]; got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := values["doggyday_auth_attempts_total"]; got != 1 {
		t.Errorf("auth attempts = %v, want 1", got)
	}
	if got := values["doggyday_stream_clients"]; got != 2 {
		t.Errorf("stream clients = %v, want 2", got)
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic registering the same metrics twice")
		}
	}()
	NewMetrics(reg)
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.Appointments.WithLabelValues("daycare").Inc()

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`doggyday_appointments_created_total{service="daycare"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
