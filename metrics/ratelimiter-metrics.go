// Package metrics records limiter decisions and errors as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"learn.requestlimiter/types"
)

// Error kinds used as the "kind" label of the errors counter.
const (
	ErrorKindBackend     = "backend"
	ErrorKindUnknownUser = "unknown_user"
	ErrorKindInvalidArg  = "invalid_argument"
	ErrorKindRequestLog  = "request_log"
	ErrorKindRegistry    = "registry"
)

type RateLimitMetrics struct {
	decisions *prometheus.CounterVec
	wait      *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

// NewRateLimitMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is convenient in tests.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	m := &RateLimitMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_decisions_total",
			Help: "Admission decisions by limiter and outcome",
		}, []string{"limiter", "outcome"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimiter_wait_seconds",
			Help:    "Wait time reported with rejections",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60},
		}, []string{"limiter"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_errors_total",
			Help: "Errors seen while handling requests, by limiter and kind",
		}, []string{"limiter", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.wait, m.errors)
	}
	return m
}

// RecordDecision counts d and, for rejections, observes its wait time.
func (m *RateLimitMetrics) RecordDecision(limiter string, d types.Decision) {
	if d.Allowed {
		m.decisions.WithLabelValues(limiter, "allowed").Inc()
		return
	}
	m.decisions.WithLabelValues(limiter, "rejected").Inc()
	m.wait.WithLabelValues(limiter).Observe(d.WaitTime.Seconds())
}

func (m *RateLimitMetrics) RecordError(limiter, kind string) {
	m.errors.WithLabelValues(limiter, kind).Inc()
}
