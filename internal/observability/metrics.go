// Package observability collects Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus collectors used by the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginAttempts   *prometheus.CounterVec
	policyDecisions *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
}

// NewMetrics initializes the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "choreboard_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "choreboard_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "choreboard_login_attempts_total",
		Help: "Login attempts by method and outcome.",
	}, []string{"method", "outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "choreboard_policy_decisions_total",
		Help: "Authorization decisions by resource, action and effect.",
	}, []string{"resource", "action", "effect"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "choreboard_sessions_active",
		Help: "Currently live sessions.",
	})
	registry.MustRegister(requests, duration, logins, decisions, sessions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		loginAttempts:   logins,
		policyDecisions: decisions,
		sessionsActive:  sessions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// ObserveLogin counts one login attempt.
func (m *Metrics) ObserveLogin(method, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(method, outcome).Inc()
}

// ObservePolicyDecision counts one authorization decision.
func (m *Metrics) ObservePolicyDecision(resource, action string, allowed bool) {
	if m == nil {
		return
	}
	effect := "deny"
	if allowed {
		effect = "permit"
	}
	m.policyDecisions.WithLabelValues(resource, action, effect).Inc()
}

// SetSessionsActive sets the live session gauge.
func (m *Metrics) SetSessionsActive(n float64) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(n)
}

// AddSessionsActive moves the live session gauge by delta.
func (m *Metrics) AddSessionsActive(delta float64) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(delta)
}

// Registerer exposes the registry for custom collector registration.
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
