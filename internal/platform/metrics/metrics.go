package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Handshakes       *prometheus.CounterVec
	AssetMutations   *prometheus.CounterVec
	ReplayedCommands *prometheus.CounterVec
	OutboundLatency  *prometheus.HistogramVec
	EventsPublished  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Handshakes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpihub_credentials_handshakes_total",
			Help: "Credentials handshake attempts by event and outcome",
		}, []string{"event", "outcome"}),
		AssetMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpihub_asset_mutations_total",
			Help: "Asset store mutations by kind, operation and outcome",
		}, []string{"kind", "op", "outcome"}),
		ReplayedCommands: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ocpihub_replayed_commands_total",
			Help: "Command log records replayed at startup by stream",
		}, []string{"stream"}),
		OutboundLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocpihub_outbound_request_seconds",
			Help:    "Latency of outbound partner version discovery calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ocpihub_events_published_total",
			Help: "Domain events handed to the broker sink",
		}),
	}
}

// Handshake satisfies the registration service's metrics hook.
func (m *Metrics) Handshake(event, outcome string) {
	m.Handshakes.WithLabelValues(event, outcome).Inc()
}

// AssetMutation records one store mutation.
func (m *Metrics) AssetMutation(kind, op, outcome string) {
	m.AssetMutations.WithLabelValues(kind, op, outcome).Inc()
}

// Replayed adds replayed record counts per stream.
func (m *Metrics) Replayed(stream string, n int) {
	m.ReplayedCommands.WithLabelValues(stream).Add(float64(n))
}

// ObserveOutbound records the latency of one partner call.
func (m *Metrics) ObserveOutbound(call string, d time.Duration) {
	m.OutboundLatency.WithLabelValues(call).Observe(d.Seconds())
}
