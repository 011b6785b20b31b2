package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.IncJob("stock:snapshot", "ok")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "gearbox_jobs_total") {
		t.Fatalf("expected body to contain gearbox_jobs_total, got: %s", body)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler { return metrics.Middleware(next) })
	router.Get("/api/v1/stock/low", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock/low", nil).WithContext(context.Background())
	router.ServeHTTP(rr, req)

	body := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(body.Body.String(), "gearbox_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}
