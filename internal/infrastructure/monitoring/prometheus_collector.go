package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for relay frames, used as label values.
const (
	DropFrameTooShort  = "frame_too_short"
	DropMetaSize       = "meta_size_out_of_range"
	DropTruncated      = "frame_truncated"
	DropBadMetadata    = "bad_metadata"
	DropMissingFields  = "missing_fields"
	DropUnknownCall    = "unknown_call"
	DropBadCallKey     = "bad_call_key"
	DropTargetOffline  = "target_offline"
	DropSendFailed     = "send_failed"
	DropRateLimited    = "rate_limited"
)

// Collector publishes gateway metrics. A nil *Collector is valid and
// records nothing, so tests can run without a registry.
type Collector struct {
	clientsConnected prometheus.Gauge
	callsActive      prometheus.Gauge

	controlMessages *prometheus.CounterVec
	framesRelayed   prometheus.Counter
	framesDropped   *prometheus.CounterVec
	relayedBytes    prometheus.Counter
	voicenotes      *prometheus.CounterVec

	connectionsTotal prometheus.Counter
	evictionsTotal   prometheus.Counter
}

// NewCollector registers the gateway metrics with reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		clientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxrelay_clients_connected",
			Help: "Number of registered client identities",
		}),

		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxrelay_calls_active",
			Help: "Number of in-progress calls",
		}),

		controlMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_control_messages_total",
			Help: "Control messages handled, by message type",
		}, []string{"type"}),

		framesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_audio_frames_relayed_total",
			Help: "Audio frames forwarded to the other call participant",
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_audio_frames_dropped_total",
			Help: "Audio frames dropped, by reason",
		}, []string{"reason"}),

		relayedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_audio_relayed_bytes_total",
			Help: "Total bytes of relayed audio frames, headers included",
		}),

		voicenotes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_voicenotes_total",
			Help: "Voice note announcements handled, by destination type",
		}, []string{"to_type"}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_connections_total",
			Help: "WebSocket connections accepted",
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxrelay_evictions_total",
			Help: "Stale connections evicted by re-registration",
		}),
	}
}

func (c *Collector) SetClientsConnected(n int) {
	if c == nil {
		return
	}
	c.clientsConnected.Set(float64(n))
}

func (c *Collector) SetCallsActive(n int) {
	if c == nil {
		return
	}
	c.callsActive.Set(float64(n))
}

func (c *Collector) RecordControlMessage(msgType string) {
	if c == nil {
		return
	}
	c.controlMessages.WithLabelValues(msgType).Inc()
}

func (c *Collector) RecordFrameRelayed(bytes int) {
	if c == nil {
		return
	}
	c.framesRelayed.Inc()
	c.relayedBytes.Add(float64(bytes))
}

func (c *Collector) RecordFrameDropped(reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordVoiceNote(toType string) {
	if c == nil {
		return
	}
	c.voicenotes.WithLabelValues(toType).Inc()
}

func (c *Collector) RecordConnectionAccepted() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
}

func (c *Collector) RecordEviction() {
	if c == nil {
		return
	}
	c.evictionsTotal.Inc()
}
