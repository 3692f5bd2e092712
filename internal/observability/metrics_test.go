package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

	body := scrape(t, metrics)
	if !strings.Contains(body, "helpdesk_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "helpdesk_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("ticket.view", false, "TenantMismatch")
	metrics.ObserveDecision("ticket.view", false, "TenantMismatch")
	metrics.ObserveDecision("ticket.view", true, "")

	body := scrape(t, metrics)
	if !strings.Contains(body, `helpdesk_authz_decisions_total{action="ticket.view",outcome="deny",reason="TenantMismatch"} 2`) {
		t.Fatalf("expected deny counter, got: %s", body)
	}
	if !strings.Contains(body, `helpdesk_authz_decisions_total{action="ticket.view",outcome="allow",reason=""} 1`) {
		t.Fatalf("expected allow counter, got: %s", body)
	}
}

func TestAuditAndIsolationCollectors(t *testing.T) {
	metrics := NewMetrics()
	metrics.AuditWriteFailed("postgres")
	metrics.IsolationVerified(2, time.Unix(1700000000, 0))

	body := scrape(t, metrics)
	if !strings.Contains(body, `helpdesk_audit_write_failures_total{sink="postgres"} 1`) {
		t.Fatalf("expected audit failure counter, got: %s", body)
	}
	if !strings.Contains(body, "helpdesk_isolation_tables_failing 2") {
		t.Fatalf("expected failing gauge, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision("ticket.view", true, "")
	metrics.AuditWriteFailed("queue")
	metrics.IsolationVerified(0, time.Now())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
