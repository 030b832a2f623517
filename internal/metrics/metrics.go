// Package metrics exposes the relay's Prometheus instrumentation,
// grounded in ocx-backend's promauto-registered Metrics struct.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the relay registers.
type Metrics struct {
	RoomsActive      prometheus.Gauge
	MembersConnected prometheus.Gauge

	FramesSent         prometheus.Counter
	FramesReceived     prometheus.Counter
	FramesRetransmitted prometheus.Counter
	FramesDropped      *prometheus.CounterVec

	CommandsExecuted *prometheus.CounterVec
	FrameRTT         prometheus.Histogram
}

// New registers and returns every collector against the default
// registry.
func New() *Metrics {
	return &Metrics{
		RoomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Number of rooms currently hosted by this relay process.",
		}),
		MembersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_members_connected",
			Help: "Number of members currently connected across all rooms.",
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_sent_total",
			Help: "Total UDP frames sent.",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Total UDP frames received and accepted past replay protection.",
		}),
		FramesRetransmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_retransmitted_total",
			Help: "Total reliable frames retransmitted after an ack timeout.",
		}),
		FramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Total frames dropped before room execution, by reason.",
		}, []string{"reason"}),
		CommandsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_executed_total",
			Help: "Total commands applied to a room, by outcome.",
		}, []string{"kind", "outcome"}),
		FrameRTT: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_frame_rtt_seconds",
			Help:    "Smoothed per-peer round-trip time samples.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordDrop increments the dropped-frame counter for reason.
func (m *Metrics) RecordDrop(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordCommand increments the command counter for kind/outcome.
func (m *Metrics) RecordCommand(kind, outcome string) {
	m.CommandsExecuted.WithLabelValues(kind, outcome).Inc()
}
