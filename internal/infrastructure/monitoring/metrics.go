package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics. Every Record method is safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	TokensIssued          *prometheus.CounterVec
	TokenIssueLatency     *prometheus.HistogramVec
	TokenVerifications    *prometheus.CounterVec
	Logins                *prometheus.CounterVec
	TokenRevocations      prometheus.Counter
	RateLimitDecisions    *prometheus.CounterVec
	Rotations             *prometheus.CounterVec
	JWKSCacheLookups      *prometheus.CounterVec
	JWKSInvalidationFails prometheus.Counter
	RefreshTokensSwept    prometheus.Counter
	AuditFailures         *prometheus.CounterVec
	ActiveRequests        *prometheus.GaugeVec
	RequestDuration       *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_tokens_issued_total",
				Help: "Total number of tokens issued.",
			},
			[]string{"type"},
		),
		TokenIssueLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credcore_token_issue_latency_seconds",
				Help:    "Latency of token issuance.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		TokenVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_token_verifications_total",
				Help: "Access token verifications by detailed result.",
			},
			[]string{"result"},
		),
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		TokenRevocations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "credcore_token_revocations_total",
				Help: "Total number of refresh token revocations.",
			},
		),
		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_rate_limit_decisions_total",
				Help: "Rate limiter decisions by result.",
			},
			[]string{"result"},
		),
		Rotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_rotations_total",
				Help: "Key rotation checks by outcome.",
			},
			[]string{"outcome"},
		),
		JWKSCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_jwks_cache_lookups_total",
				Help: "JWKS cache lookups by result.",
			},
			[]string{"result"},
		),
		JWKSInvalidationFails: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "credcore_jwks_invalidation_failures_total",
				Help: "JWKS cache invalidations that failed after a rotation was persisted.",
			},
		),
		RefreshTokensSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "credcore_refresh_tokens_swept_total",
				Help: "Expired refresh tokens deleted by the sweeper.",
			},
		),
		AuditFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credcore_audit_failures_total",
				Help: "Audit events that could not be written, by sink.",
			},
			[]string{"sink"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credcore_http_active_requests",
				Help: "In-flight HTTP requests.",
			},
			[]string{"path", "method"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credcore_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method", "status"},
		),
	}
}

// RecordTokenIssue records one issued token.
func (m *Metrics) RecordTokenIssue(tokenType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(tokenType).Inc()
	m.TokenIssueLatency.WithLabelValues(tokenType).Observe(duration.Seconds())
}

// RecordVerification records the detailed result of a verification.
func (m *Metrics) RecordVerification(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

// RecordLogin records a login outcome.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

// RecordTokenRevocation records a revocation.
func (m *Metrics) RecordTokenRevocation() {
	if m == nil {
		return
	}
	m.TokenRevocations.Inc()
}

// RecordRateLimit records a rate limiter decision: allowed, limited or fallback.
func (m *Metrics) RecordRateLimit(result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(result).Inc()
}

// RecordRotation records a rotation check outcome.
func (m *Metrics) RecordRotation(outcome string) {
	if m == nil {
		return
	}
	m.Rotations.WithLabelValues(outcome).Inc()
}

// RecordJWKSLookup records a cache hit, miss or degraded lookup.
func (m *Metrics) RecordJWKSLookup(result string) {
	if m == nil {
		return
	}
	m.JWKSCacheLookups.WithLabelValues(result).Inc()
}

// RecordJWKSInvalidationFailure records a failed post-rotation invalidation.
func (m *Metrics) RecordJWKSInvalidationFailure() {
	if m == nil {
		return
	}
	m.JWKSInvalidationFails.Inc()
}

// RecordSweep records the number of rows deleted by one sweep.
func (m *Metrics) RecordSweep(deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.RefreshTokensSwept.Add(float64(deleted))
}

// RecordAuditFailure records an audit write failure.
func (m *Metrics) RecordAuditFailure(sink string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) ActiveRequestsInc(path, method string) {
	if m == nil {
		return
	}
	m.ActiveRequests.WithLabelValues(path, method).Inc()
}

func (m *Metrics) ActiveRequestsDec(path, method string) {
	if m == nil {
		return
	}
	m.ActiveRequests.WithLabelValues(path, method).Dec()
}

func (m *Metrics) ObserveRequestDuration(path, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(path, method, strconv.Itoa(status)).Observe(seconds)
}
