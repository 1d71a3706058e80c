package queue

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks queue traffic. A nil *Metrics disables instrumentation.
type Metrics struct {
	received *prometheus.CounterVec
}

// NewMetrics registers queue metrics on the given registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_messages_total",
				Help:      "Messages received on the result queue, by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(m.received)
	return m
}

func (m *Metrics) incReceived(kind MessageKind) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(string(kind)).Inc()
}
