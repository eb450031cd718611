package assembly

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for sysarch_mutations_total.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the Engine's Prometheus collectors.
type Metrics struct {
	Mutations  *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use to read values directly.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sysarch_mutations_total",
			Help: "Mutations by operation and outcome (accepted, rejected, failed)",
		}, []string{"op", "outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sysarch_rejections_total",
			Help: "Rejected operations by error kind",
		}, []string{"kind"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sysarch_operation_duration_seconds",
			Help:    "Engine operation latency including the enclosing transaction",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}, []string{"op"}),
	}
}

func (m *Metrics) observe(op string, mutation bool, kind ErrorKind, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
	if kind != "" {
		m.Rejections.WithLabelValues(string(kind)).Inc()
	}
	if !mutation {
		return
	}
	outcome := OutcomeAccepted
	switch {
	case kind != "":
		outcome = OutcomeRejected
	case err != nil:
		outcome = OutcomeFailed
	}
	m.Mutations.WithLabelValues(op, outcome).Inc()
}
