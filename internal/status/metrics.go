package status

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "chunkq"

// Metrics holds the collectors shared by all notifiers.
type Metrics struct {
	QueueSize      *prometheus.GaugeVec
	ProcessedTotal *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	CycleSeconds   *prometheus.HistogramVec
	BlocksTotal    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "queue_size",
				Help:      "Pending queue rows per index observed at the start of the last cycle",
			},
			[]string{"index"},
		),
		ProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "processed_total",
				Help:      "Queue rows compiled, published and vacuumed",
			},
			[]string{"index"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "errors_total",
				Help:      "Processor failures by kind",
			},
			[]string{"index", "kind"},
		),
		CycleSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "cycle_seconds",
				Help:      "Wall time of processor cycles that dispatched work",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"index"},
		),
		BlocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "blocks_total",
				Help:      "Dispatched blocks by outcome",
			},
			[]string{"index", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.QueueSize, m.ProcessedTotal, m.ErrorsTotal, m.CycleSeconds, m.BlocksTotal)
	}
	return m
}
