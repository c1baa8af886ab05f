package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the claimd collectors. Each instance registers on its own registerer.
type Metrics struct {
	// RequestsTotal counts HTTP requests by route template, method and status code.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration tracks handler latency in seconds by route template.
	RequestDuration *prometheus.HistogramVec
	// ClaimsTotal counts claim attempts by outcome (claimed, not_found, expired, ...).
	ClaimsTotal *prometheus.CounterVec
	// SessionsCreated counts sessions opened by the web flow.
	SessionsCreated prometheus.Counter
}

// NewMetrics creates and registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimd_http_requests_total",
				Help: "Total HTTP requests by route, method and code",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claimd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"route"},
		),
		ClaimsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimd_claims_total",
				Help: "Claim attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "claimd_sessions_created_total",
				Help: "Sessions created by the web flow",
			},
		),
	}
}
