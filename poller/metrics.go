package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the polling loop.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	ProbesTotal     *prometheus.CounterVec
	State           prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anemwatch_attempts_total",
			Help: "Total form attempts by outcome.",
		},
		[]string{"outcome"},
	)
	attemptDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anemwatch_attempt_duration_seconds",
			Help:    "Wall-clock duration of one open, fill, detect, close cycle.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anemwatch_retries_total",
			Help: "Total number of delayed re-attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anemwatch_errors_total",
			Help: "Total number of attempt errors by type.",
		},
		[]string{"error_type"},
	)
	probes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anemwatch_probe_requests_total",
			Help: "Candidate validation pre-checks by result.",
		},
		[]string{"result"},
	)
	state := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anemwatch_state",
			Help: "Controller state (0 idle, 1 running, 2 success, 3 retry, 4 fatal).",
		},
	)

	registry.MustRegister(attempts, attemptDuration, retries, errorsTotal, probes, state)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		AttemptDuration: attemptDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		ProbesTotal:     probes,
		State:           state,
	}
}

// IncAttempt increments the attempts counter for an outcome.
func (m *Metrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an attempt duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncProbe increments the pre-check counter for a result label.
func (m *Metrics) IncProbe(result string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
}

// SetState publishes the controller state.
func (m *Metrics) SetState(s State) {
	if m == nil {
		return
	}
	m.State.Set(float64(s))
}
