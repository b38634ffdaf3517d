// Package observability provides Prometheus metrics and the HTTP endpoints
// that expose them.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "koewake"

// Metrics holds every collector used by the client and the relay.
type Metrics struct {
	// Session lifecycle
	SessionsStarted prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	SessionsActive  prometheus.Gauge

	// Outbound audio
	FramesSent     prometheus.Counter
	FramesDropped  *prometheus.CounterVec
	AudioBytesSent prometheus.Counter

	// Inbound events
	EventsReceived     *prometheus.CounterVec
	EventsMalformed    prometheus.Counter
	UnassignedSpeakers prometheus.Counter
	EntriesDelivered   *prometheus.CounterVec

	// Relay
	RelayConnections        prometheus.Gauge
	RelayFramesForwarded    *prometheus.CounterVec
	RelayFramesGated        prometheus.Counter
	RelayFinalResults       prometheus.Counter
	RelaySwitchesSuppressed prometheus.Counter
	RecognizerErrors        prometheus.Counter
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Recording sessions that reached Active",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Recording sessions that ended by failure, by reason",
		}, []string{"reason"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Recording sessions currently Active",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Encoded audio frames written to the transport",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Encoded audio frames dropped before transmission, by reason",
		}, []string{"reason"}),
		AudioBytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "PCM bytes written to the transport",
		}),
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Diarization events received, by kind",
		}, []string{"kind"}),
		EventsMalformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_malformed_total",
			Help:      "Inbound messages that failed to parse",
		}),
		UnassignedSpeakers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unassigned_speakers_total",
			Help:      "Distinct tags seen after both roles were taken",
		}),
		EntriesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_delivered_total",
			Help:      "Final transcript entries handed to a sink, by sink and result",
		}, []string{"sink", "result"}),
		RelayConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Open relay WebSocket connections",
		}),
		RelayFramesForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_forwarded_total",
			Help:      "30ms frames forwarded to the recognizer, by kind",
		}, []string{"kind"}),
		RelayFramesGated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_gated_total",
			Help:      "30ms frames withheld by voice activity gating",
		}),
		RelayFinalResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_final_results_total",
			Help:      "Final results sent to clients",
		}),
		RelaySwitchesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_speaker_switches_suppressed_total",
			Help:      "Speaker changes held back by hysteresis",
		}),
		RecognizerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Recognizer stream failures",
		}),
	}
}

// Frame drop reasons.
const (
	DropNotActive    = "not_active"
	DropBackpressure = "backpressure"
)
