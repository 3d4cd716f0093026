package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	events  *prometheus.CounterVec
	updates *prometheus.CounterVec
	cycles  prometheus.Counter
	running prometheus.Gauge
}

// NewMetrics creates the relay collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padrelay",
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Raw device events polled, by event kind.",
		}, []string{"kind"}),
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padrelay",
			Subsystem: "relay",
			Name:      "updates_total",
			Help:      "Updates sent to the controller session, by update type.",
		}, []string{"type"}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "padrelay",
			Subsystem: "relay",
			Name:      "cycles_total",
			Help:      "Poll cycles completed.",
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "padrelay",
			Subsystem: "relay",
			Name:      "running",
			Help:      "1 while a relay loop is running.",
		}),
	}
}
