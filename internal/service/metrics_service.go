package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// authentication surface. A nil receiver is a no-op so services can carry
// it optionally.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	logins          *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	otpIssued       *prometheus.CounterVec
	otpVerified     *prometheus.CounterVec
	sessionsRevoked *prometheus.CounterVec
	blacklistPuts   prometheus.Counter
}

// NewMetricsService registers the auth collectors on a fresh registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by outcome",
	}, []string{"result"})

	rotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Refresh token rotations by outcome",
	}, []string{"result"})

	otpIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_issued_total",
		Help: "One-time codes issued by purpose",
	}, []string{"purpose"})

	otpVerified := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_verified_total",
		Help: "One-time code verifications by outcome",
	}, []string{"result"})

	sessionsRevoked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_revoked_total",
		Help: "Refresh sessions revoked by scope",
	}, []string{"scope"})

	blacklistPuts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_blacklist_puts_total",
		Help: "Access tokens denylisted before natural expiry",
	})

	registry.MustRegister(requestDuration, requestTotal, logins, rotations, otpIssued, otpVerified, sessionsRevoked, blacklistPuts)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		logins:          logins,
		rotations:       rotations,
		otpIssued:       otpIssued,
		otpVerified:     otpVerified,
		sessionsRevoked: sessionsRevoked,
		blacklistPuts:   blacklistPuts,
	}
}

// Handler exposes the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// IncLogin counts a login attempt outcome.
func (m *MetricsService) IncLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// IncRotation counts a rotation outcome.
func (m *MetricsService) IncRotation(result string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(result).Inc()
}

// IncOTPIssued counts an issued code.
func (m *MetricsService) IncOTPIssued(purpose string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(purpose).Inc()
}

// IncOTPVerified counts a verification outcome.
func (m *MetricsService) IncOTPVerified(result string) {
	if m == nil {
		return
	}
	m.otpVerified.WithLabelValues(result).Inc()
}

// AddSessionsRevoked counts revoked sessions for a revocation scope.
func (m *MetricsService) AddSessionsRevoked(scope string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.WithLabelValues(scope).Add(float64(n))
}

// IncBlacklistPut counts a denylisted access token.
func (m *MetricsService) IncBlacklistPut() {
	if m == nil {
		return
	}
	m.blacklistPuts.Inc()
}
