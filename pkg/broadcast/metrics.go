package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts broadcaster activity. Registration is caller-supplied
// so tests can use private registries.
type Metrics struct {
	EventsBroadcast     prometheus.Counter
	FailedDeliveries    prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
	BatchesFlushed      prometheus.Counter
}

// NewMetrics creates and registers the broadcaster metrics. A nil
// registerer leaves them unregistered (tests that don't scrape).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encounterd_events_broadcast_total",
			Help: "Events accepted for fan-out.",
		}),
		FailedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encounterd_failed_deliveries_total",
			Help: "Deliveries dropped by full buffers, handler errors, or panics.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "encounterd_active_subscriptions",
			Help: "Currently registered subscriptions.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "encounterd_delta_batches_flushed_total",
			Help: "State delta batches flushed to subscribers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsBroadcast, m.FailedDeliveries, m.ActiveSubscriptions, m.BatchesFlushed)
	}
	return m
}
