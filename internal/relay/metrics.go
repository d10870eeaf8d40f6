package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// relayMetrics belongs to one Relay. Gauges are always set from that
// relay's own tables.
type relayMetrics struct {
	connections    prometheus.Gauge
	snapshots      prometheus.Gauge
	pending        prometheus.Gauge
	inbound        *prometheus.CounterVec
	sendFailures   prometheus.Counter
	bridgeRequests *prometheus.CounterVec
	bridgeDuration *prometheus.HistogramVec
}

// newRelayMetrics builds the relay's collectors and registers them with
// reg. A nil reg leaves them unregistered.
func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	m := &relayMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Live persistent connections",
		}),
		snapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_match_snapshots",
			Help: "Match snapshots held in memory",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_pending_requests",
			Help: "Bridged requests waiting for an answer",
		}),
		inbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_inbound_messages_total",
				Help: "Frames received from connections by message type",
			},
			[]string{"type"},
		),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Sends that failed and dropped the connection",
		}),
		bridgeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_bridge_requests_total",
				Help: "Bridged requests by kind and how they resolved",
			},
			[]string{"kind", "result"},
		),
		bridgeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_bridge_duration_seconds",
				Help:    "Time from broadcast to resolution of bridged requests",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.connections,
			m.snapshots,
			m.pending,
			m.inbound,
			m.sendFailures,
			m.bridgeRequests,
			m.bridgeDuration,
		)
	}
	return m
}

func (m *relayMetrics) observeBridge(p *PendingRequest, result string, now time.Time) {
	m.bridgeRequests.WithLabelValues(string(p.Kind), result).Inc()
	m.bridgeDuration.WithLabelValues(string(p.Kind)).Observe(now.Sub(p.Started).Seconds())
}

// messageLabel keeps the type label bounded; unknown types share one
// series.
func messageLabel(typ string) string {
	switch typ {
	case TypeSyncMatchData, TypeDeleteMatch, TypeClearAllMatches, TypeSubscribeMatch, TypeMatchAction, TypePing:
		return typ
	}
	if _, ok := kindForResponse(typ); ok {
		return typ
	}
	return "other"
}
