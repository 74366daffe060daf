package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify HTTP metrics are initialized
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.HTTPRequestSize == nil {
			t.Error("HTTPRequestSize is nil")
		}
		if metrics.HTTPResponseSize == nil {
			t.Error("HTTPResponseSize is nil")
		}

		// Verify auth metrics are initialized
		if metrics.LoginsTotal == nil {
			t.Error("LoginsTotal is nil")
		}
		if metrics.RegistrationsTotal == nil {
			t.Error("RegistrationsTotal is nil")
		}
		if metrics.TokenRejectionsTotal == nil {
			t.Error("TokenRejectionsTotal is nil")
		}

		// Verify notes metrics are initialized
		if metrics.NotesCreatedTotal == nil {
			t.Error("NotesCreatedTotal is nil")
		}
		if metrics.NotesDeletedTotal == nil {
			t.Error("NotesDeletedTotal is nil")
		}
		if metrics.QuotaRejectionsTotal == nil {
			t.Error("QuotaRejectionsTotal is nil")
		}

		// Verify billing metrics are initialized
		if metrics.PaymentsVerifiedTotal == nil {
			t.Error("PaymentsVerifiedTotal is nil")
		}
		if metrics.UpgradesTotal == nil {
			t.Error("UpgradesTotal is nil")
		}
		if metrics.ActiveSubscriptions == nil {
			t.Error("ActiveSubscriptions is nil")
		}

		// Verify database metrics are initialized
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.DBConnectionsIdle == nil {
			t.Error("DBConnectionsIdle is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.LoginsTotal.WithLabelValues("success").Add(0)
		metrics.NotesCreatedTotal.Add(0)
		metrics.QuotaRejectionsTotal.Add(0)
		metrics.PaymentsVerifiedTotal.WithLabelValues("verified").Add(0)
		metrics.ActiveSubscriptions.Set(0)
		metrics.DBConnectionsActive.Set(0)

		// Gather metrics from registry to verify registration
		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expected := []string{
			"quill_http_requests_total",
			"quill_logins_total",
			"quill_notes_created_total",
			"quill_quota_rejections_total",
			"quill_payments_verified_total",
			"quill_active_subscriptions",
			"quill_db_connections_active",
		}
		for _, name := range expected {
			if !metricNames[name] {
				t.Errorf("metric %s not registered", name)
			}
		}
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	expected := `
# HELP quill_http_requests_total Total number of HTTP requests
# TYPE quill_http_requests_total counter
quill_http_requests_total{method="POST",path="/api/notes",status="201"} 1
`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter state: %v", err)
	}

	if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count == 0 {
		t.Error("request duration not observed")
	}
}

func TestBusinessCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.NotesCreatedTotal.Inc()
	metrics.NotesCreatedTotal.Inc()
	metrics.QuotaRejectionsTotal.Inc()
	metrics.UpgradesTotal.Inc()
	metrics.ActiveSubscriptions.Set(3)

	if got := testutil.ToFloat64(metrics.NotesCreatedTotal); got != 2 {
		t.Errorf("NotesCreatedTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.QuotaRejectionsTotal); got != 1 {
		t.Errorf("QuotaRejectionsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveSubscriptions); got != 3 {
		t.Errorf("ActiveSubscriptions = %v, want 3", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.NotesCreatedTotal.Inc()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "quill_notes_created_total 1") {
		t.Error("metrics endpoint missing quill_notes_created_total")
	}
}
