package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the translation rooms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session and room metrics
	ActiveSessions prometheus.Gauge
	ActiveRooms    prometheus.Gauge

	// Ingest metrics
	FramesReceived prometheus.Counter
	BytesReceived  prometheus.Counter
	Segments       *prometheus.CounterVec
	QueueWait      prometheus.Histogram
	InFlight       prometheus.Gauge

	// Pipeline metrics
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec

	// Delivery metrics
	FramesSent    *prometheus.CounterVec
	FramesDropped prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "polyglot_active_sessions",
			Help: "Current number of connected streaming sessions",
		}),
		ActiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "polyglot_active_rooms",
			Help: "Current number of rooms with at least one participant",
		}),
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "polyglot_audio_frames_received_total",
			Help: "Total number of inbound audio frames",
		}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "polyglot_audio_bytes_received_total",
			Help: "Total number of inbound audio bytes",
		}),
		Segments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_segments_total",
			Help: "Sealed audio segments by outcome",
		}, []string{"outcome"}),
		QueueWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "polyglot_segment_queue_wait_seconds",
			Help:    "Time a ready segment waited before entering the pipeline",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "polyglot_segments_in_flight",
			Help: "Segments currently inside the pipeline",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polyglot_stage_duration_seconds",
			Help:    "Collaborator call latency by stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_stage_errors_total",
			Help: "Collaborator failures and timeouts by stage",
		}, []string{"stage"}),
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_frames_sent_total",
			Help: "Outbound frames queued to sessions by kind",
		}, []string{"kind"}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "polyglot_frames_dropped_total",
			Help: "Outbound frames dropped because of receiver backpressure",
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveFrame(n int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

func (m *Metrics) ObserveSegment(outcome string) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveQueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.QueueWait.Observe(d.Seconds())
}

func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(delta)
}

func (m *Metrics) ObserveDelivery(kind string, sent, dropped int) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(kind).Add(float64(sent))
	m.FramesDropped.Add(float64(dropped))
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.ActiveRooms.Set(float64(n))
}
