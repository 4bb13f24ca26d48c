package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Decision outcomes, used as the metric label and in logs.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeContention = "contention"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"
)

// Metrics holds the limiter's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	storeDuration prometheus.Histogram
	breaker       prometheus.Gauge
}

// NewMetrics registers the limiter collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gatekeeper",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions by outcome",
			},
			[]string{"outcome"},
		),
		storeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gatekeeper",
				Subsystem: "ratelimit",
				Name:      "store_duration_seconds",
				Help:      "Duration of remote rate limit store updates in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		breaker: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gatekeeper",
				Subsystem: "ratelimit",
				Name:      "breaker_state",
				Help:      "Circuit breaker state of the rate limit store (0=closed, 1=half-open, 2=open)",
			},
		),
	}
}

func (m *Metrics) decision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeStore(d time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.Observe(d.Seconds())
}

func (m *Metrics) breakerState(s gobreaker.State) {
	if m == nil {
		return
	}
	m.breaker.Set(float64(s))
}
