package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SocketConnections prometheus.Gauge
	MessagesFannedOut *prometheus.CounterVec
	RejectedEvents    *prometheus.CounterVec
	AccessCacheHits   prometheus.Counter
	AccessCacheMisses prometheus.Counter
	PersistDurationMs prometheus.Histogram
}

// New creates all Prometheus metrics against the given registerer. Production
// passes prometheus.DefaultRegisterer; tests pass a fresh registry so repeated
// construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatwall_socket_connections",
			Help: "Number of currently connected WebSocket clients",
		}),
		MessagesFannedOut: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwall_messages_fanned_out_total",
			Help: "Messages delivered to room members, by event type",
		}, []string{"event"}),
		RejectedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwall_rejected_events_total",
			Help: "Socket events dropped before fan-out, by reason",
		}, []string{"reason"}),
		AccessCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwall_access_cache_hits_total",
			Help: "Participant cache lookups answered without a directory fetch",
		}),
		AccessCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatwall_access_cache_misses_total",
			Help: "Participant cache lookups that required a directory fetch",
		}),
		PersistDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatwall_wall_persist_duration_ms",
			Help:    "Latency of wall message persistence in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
	}
}
