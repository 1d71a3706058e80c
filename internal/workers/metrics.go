package workers

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks worker process lifecycle. A nil *Metrics disables
// instrumentation.
type Metrics struct {
	alive       prometheus.Gauge
	spawned     prometheus.Counter
	forceKilled prometheus.Counter
}

// NewMetrics registers pool metrics on the given registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		alive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_alive",
				Help:      "Number of live worker processes",
			},
		),
		spawned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workers_spawned_total",
				Help:      "Total worker processes spawned",
			},
		),
		forceKilled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workers_force_killed_total",
				Help:      "Worker processes force-killed during shutdown",
			},
		),
	}

	reg.MustRegister(m.alive, m.spawned, m.forceKilled)
	return m
}

func (m *Metrics) setAlive(n int) {
	if m == nil {
		return
	}
	m.alive.Set(float64(n))
}

func (m *Metrics) incSpawned() {
	if m == nil {
		return
	}
	m.spawned.Inc()
}

func (m *Metrics) incForceKilled() {
	if m == nil {
		return
	}
	m.forceKilled.Inc()
}
