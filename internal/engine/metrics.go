package engine

import "github.com/prometheus/client_golang/prometheus"

// metrics is the engine's Prometheus collector set, registered once per
// Engine instance so multiple engines in the same process (tests) don't
// collide on the default registry.
type metrics struct {
	ordersSubmitted  *prometheus.CounterVec
	ordersRejected   *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
	venueErrorRate   *prometheus.GaugeVec
	venueConnected   *prometheus.GaugeVec
	poolInUse        prometheus.Gauge
	poolLeaked       prometheus.Counter
	sendLatencySecs  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_orders_submitted_total",
			Help: "Orders submitted, by venue.",
		}, []string{"venue"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_orders_rejected_total",
			Help: "Orders rejected before or by the venue, by venue.",
		}, []string{"venue"}),
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_executions_total",
			Help: "Execution reports processed, by venue and exec type.",
		}, []string{"venue", "exec_type"}),
		venueErrorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fixengine_venue_error_rate",
			Help: "Transport errors in the trailing minute, by venue.",
		}, []string{"venue"}),
		venueConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fixengine_venue_connected",
			Help: "1 if the venue session is logged on, else 0.",
		}, []string{"venue"}),
		poolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fixengine_pool_envelopes_in_use",
			Help: "Envelopes currently rented from the shared pool.",
		}),
		poolLeaked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixengine_pool_leaked_total",
			Help: "Allocations served past the pool's hard cap.",
		}),
		sendLatencySecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fixengine_send_latency_seconds",
			Help:    "Wall-clock time spent in Session.Send, by venue.",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
	}

	reg.MustRegister(
		m.ordersSubmitted, m.ordersRejected, m.executionsTotal,
		m.venueErrorRate, m.venueConnected, m.poolInUse, m.poolLeaked,
		m.sendLatencySecs,
	)
	return m
}
