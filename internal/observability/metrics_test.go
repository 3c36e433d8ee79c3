package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("rbac:role_claims:purge").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "stockroom_jobs_total") {
		t.Fatalf("expected body to contain stockroom_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestRecordAuthzDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordAuthzDecision("claim", "allowed")
	metrics.RecordAuthzDecision("claim", "allowed")
	metrics.RecordAuthzDecision("all", "forbidden")

	body := scrape(t, metrics)
	if !strings.Contains(body, `stockroom_authz_decisions_total{mode="claim",outcome="allowed"} 2`) {
		t.Fatalf("expected allowed decisions, got: %s", body)
	}
	if !strings.Contains(body, `stockroom_authz_decisions_total{mode="all",outcome="forbidden"} 1`) {
		t.Fatalf("expected forbidden decision, got: %s", body)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordAuthzDecision("claim", "allowed")
}
