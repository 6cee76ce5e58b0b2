package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the registry RPC service.
type Metrics struct {
	opsTotal    *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	updatesSent *prometheus.CounterVec
	subscribers prometheus.Gauge
	tokens      prometheus.Gauge
	bindings    prometheus.Gauge
	version     prometheus.Gauge
}

// NewMetrics creates the service metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "converter_registry",
			Name:      "operations_total",
			Help:      "Write operations processed, labeled by operation and outcome.",
		}, []string{"op", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "converter_registry",
			Name:      "operation_duration_seconds",
			Help:      "Write operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		updatesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "converter_registry",
			Name:      "stream_updates_sent_total",
			Help:      "Updates sent to stream subscribers, labeled by update type.",
		}, []string{"type"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converter_registry",
			Name:      "stream_subscribers",
			Help:      "Currently connected stream subscribers.",
		}),
		tokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converter_registry",
			Name:      "tokens",
			Help:      "Size of the token enumeration.",
		}),
		bindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converter_registry",
			Name:      "bindings",
			Help:      "Registered converter bindings across all tokens.",
		}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "converter_registry",
			Name:      "version",
			Help:      "Current registry version.",
		}),
	}

	reg.MustRegister(
		m.opsTotal,
		m.opDuration,
		m.updatesSent,
		m.subscribers,
		m.tokens,
		m.bindings,
		m.version,
	)
	return m
}

// observeOp records one write operation outcome.
func (m *Metrics) observeOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.opsTotal.WithLabelValues(op, outcome).Inc()
}
