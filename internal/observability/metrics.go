package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the HTTP surface.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	decisionsTotal    *prometheus.CounterVec
	auditFailures     *prometheus.CounterVec
	isolationFailing  prometheus.Gauge
	isolationVerified prometheus.Gauge
}

// NewMetrics registers every helpdesk collector on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpdesk_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_authz_decisions_total",
		Help: "Authorization decisions by action, outcome and reason.",
	}, []string{"action", "outcome", "reason"})
	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_audit_write_failures_total",
		Help: "Audit records that could not be persisted.",
	}, []string{"sink"})
	failing := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helpdesk_isolation_tables_failing",
		Help: "Tenant-owned tables without an enforced isolation policy at the last verification.",
	})
	verified := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helpdesk_isolation_last_verified_timestamp_seconds",
		Help: "Unix time of the last completed isolation verification.",
	})
	registry.MustRegister(requests, duration, decisions, auditFailures, failing, verified)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		decisionsTotal:    decisions,
		auditFailures:     auditFailures,
		isolationFailing:  failing,
		isolationVerified: verified,
	}
}

// Handler serves the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records duration and status for every request, keyed by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts an authorization outcome.
func (m *Metrics) ObserveDecision(action string, allowed bool, reason string) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.decisionsTotal.WithLabelValues(action, outcome, reason).Inc()
}

// AuditWriteFailed counts a dropped audit record.
func (m *Metrics) AuditWriteFailed(sink string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(sink).Inc()
}

// IsolationVerified records the outcome of a policy verification run.
func (m *Metrics) IsolationVerified(failing int, at time.Time) {
	if m == nil {
		return
	}
	m.isolationFailing.Set(float64(failing))
	m.isolationVerified.Set(float64(at.Unix()))
}

// Registerer exposes the registry so other packages can add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
