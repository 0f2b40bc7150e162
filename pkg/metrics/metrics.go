package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by provider (google|phone) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"provider", "result"},
	)

	// OTPRequests counts one-time passcode issuance requests by result (issued|invalid|rate_limited|error).
	OTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_otp_requests_total",
			Help: "Total number of OTP issuance requests",
		},
		[]string{"result"},
	)

	// EmailVerifications counts verification link outcomes (success|invalid|expired).
	EmailVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_email_verifications_total",
			Help: "Total number of email verification link visits",
		},
		[]string{"status"},
	)

	// RateLimitDenials counts denied checks per limiter scope.
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_rate_limit_denials_total",
			Help: "Total number of requests denied by a rate limiter",
		},
		[]string{"scope"},
	)

	// EmailDeliveries counts outbound email attempts by template and result.
	EmailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_email_deliveries_total",
			Help: "Total number of outbound email attempts",
		},
		[]string{"template", "result"},
	)

	// MaintenanceRuns counts sweeper executions by job and result (success|failure).
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
