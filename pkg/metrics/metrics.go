package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autonex-agency/autonex/pkg/core"
)

// Metrics holds the Prometheus instruments for the voice and chat pipelines.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Voice session metrics
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	LiveAudioBytesTotal *prometheus.CounterVec
	LiveTurnsTotal      prometheus.Counter
	LiveInterruptsTotal prometheus.Counter
	LiveFramesDropped   prometheus.Counter

	// Chat pipeline metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all instruments registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "autonex"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		LiveSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active voice sessions",
		}),
		LiveSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of voice sessions by outcome",
		}, []string{"status"}),
		LiveSessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Voice session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LiveAudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "Total PCM bytes streamed in voice sessions",
		}, []string{"direction"}),
		LiveTurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_turns_total",
			Help:      "Voice turns committed to chat history",
		}),
		LiveInterruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_interruptions_total",
			Help:      "Server-signaled interruptions that flushed playback",
		}),
		LiveFramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_dropped_total",
			Help:      "Capture frames dropped because the outbound queue was full",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of model requests by mode and status",
		}, []string{"mode", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Model request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by component and type",
		}, []string{"component", "error_type"}),
	}

	registry.MustRegister(
		m.LiveSessionsActive,
		m.LiveSessionsTotal,
		m.LiveSessionDuration,
		m.LiveAudioBytesTotal,
		m.LiveTurnsTotal,
		m.LiveInterruptsTotal,
		m.LiveFramesDropped,
		m.RequestsTotal,
		m.RequestDuration,
		m.ErrorsTotal,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLiveSessionStart records a voice session starting.
func (m *Metrics) RecordLiveSessionStart() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd records a voice session ending with the given status.
func (m *Metrics) RecordLiveSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(status).Inc()
	m.LiveSessionDuration.Observe(duration.Seconds())
}

// RecordLiveAudio records PCM bytes moved in direction "in" or "out".
func (m *Metrics) RecordLiveAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.LiveAudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordLiveTurn records a committed voice turn.
func (m *Metrics) RecordLiveTurn() {
	if m == nil {
		return
	}
	m.LiveTurnsTotal.Inc()
}

// RecordLiveInterrupt records a playback flush caused by an interruption.
func (m *Metrics) RecordLiveInterrupt() {
	if m == nil {
		return
	}
	m.LiveInterruptsTotal.Inc()
}

// RecordFrameDropped records a capture frame lost to backpressure.
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.LiveFramesDropped.Inc()
}

// RecordRequest records a completed model request.
func (m *Metrics) RecordRequest(mode, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(mode, status).Inc()
	m.RequestDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordError records an error for component, labelled by its core.ErrorType when it has one.
func (m *Metrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType(err)).Inc()
}

func errorType(err error) string {
	for _, t := range []core.ErrorType{
		core.ErrPermissionDenied,
		core.ErrConnectionFailure,
		core.ErrMalformedAudio,
		core.ErrBackendFailure,
		core.ErrStorageCorrupt,
		core.ErrInvalidRequest,
	} {
		if core.IsType(err, t) {
			return string(t)
		}
	}
	return "unknown"
}
