package readiness

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeReady   = "ready"
	OutcomeRefused = "refused"
	OutcomeClosed  = "closed"
	OutcomeError   = "error"
)

type Metrics struct {
	Attempts    *prometheus.CounterVec
	TimeToReady *prometheus.HistogramVec
}

// NewMetrics builds the probe collectors and registers them on reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indi_stack",
			Subsystem: "readiness",
			Name:      "probe_attempts_total",
			Help:      "Connection attempts made by readiness probes, by outcome.",
		}, []string{"endpoint", "outcome"}),
		TimeToReady: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "indi_stack",
			Subsystem: "readiness",
			Name:      "time_to_ready_seconds",
			Help:      "Time from the first probe attempt until the endpoint accepted a connection.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
	}

	if reg != nil {
		reg.MustRegister(m.Attempts, m.TimeToReady)
	}
	return m
}
