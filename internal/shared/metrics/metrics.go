// Package metrics provides Prometheus metrics collection for the auth gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Auth flow metrics
	loginsTotal         *prometheus.CounterVec
	callbacksTotal      *prometheus.CounterVec
	refreshesTotal      *prometheus.CounterVec
	guardRedirectsTotal prometheus.Counter

	// Rate limiter metrics
	rateLimitDropped *prometheus.CounterVec

	// Identity store metrics
	usersCreatedTotal prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Namespace string
	Subsystem string
}

// New creates a new Metrics instance.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "authgate"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		loginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "logins_total",
			Help:      "Login redirects issued, by provider.",
		}, []string{"provider"}),

		callbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "callbacks_total",
			Help:      "OAuth callback outcomes, by provider and status.",
		}, []string{"provider", "status"}),

		refreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "refreshes_total",
			Help:      "Session refresh outcomes.",
		}, []string{"status"}),

		guardRedirectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "guard_redirects_total",
			Help:      "Unauthenticated requests redirected to login.",
		}),

		rateLimitDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rate_limit_dropped_total",
			Help:      "Requests dropped by the rate limiter.",
		}, []string{"path"}),

		usersCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "users_created_total",
			Help:      "User records created at first login.",
		}),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLogin records a login redirect for a provider.
func (m *Metrics) RecordLogin(provider string) {
	m.loginsTotal.WithLabelValues(provider).Inc()
}

// RecordCallback records an OAuth callback outcome.
func (m *Metrics) RecordCallback(provider, status string) {
	m.callbacksTotal.WithLabelValues(provider, status).Inc()
}

// RecordRefresh records a session refresh outcome.
func (m *Metrics) RecordRefresh(status string) {
	m.refreshesTotal.WithLabelValues(status).Inc()
}

// RecordGuardRedirect records a route guard redirect.
func (m *Metrics) RecordGuardRedirect() {
	m.guardRedirectsTotal.Inc()
}

// RecordRateLimitDrop records a dropped request.
func (m *Metrics) RecordRateLimitDrop(path string) {
	m.rateLimitDropped.WithLabelValues(path).Inc()
}

// RecordUserCreated records a first-login user creation.
func (m *Metrics) RecordUserCreated() {
	m.usersCreatedTotal.Inc()
}
