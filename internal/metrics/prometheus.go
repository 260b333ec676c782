package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the EngliChat server
type Metrics struct {
	// Voice session metrics
	VoiceSessionsStarted prometheus.Counter
	VoiceSessionsFailed  *prometheus.CounterVec
	ActiveVoiceSessions  prometheus.Gauge
	VoiceSessionDuration prometheus.Histogram
	StateTransitions     *prometheus.CounterVec

	// Audio metrics
	ChunksForwarded   prometheus.Counter
	ChunkSendFailures prometheus.Counter
	ClipsScheduled    prometheus.Counter
	ClipDuration      prometheus.Histogram
	Interruptions     prometheus.Counter
	DecodeErrors      prometheus.Counter

	// Chat metrics
	ChatRequests       prometheus.Counter
	ChatFailures       prometheus.Counter
	ChatDuration       prometheus.Histogram
	ActiveChatSessions prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Socket metrics
	SocketClients prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VoiceSessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_voice_sessions_started_total",
			Help: "Total number of voice sessions started",
		}),
		VoiceSessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "englichat_voice_sessions_failed_total",
			Help: "Total number of voice sessions that ended in error",
		}, []string{"reason"}),
		ActiveVoiceSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "englichat_active_voice_sessions",
			Help: "Current number of voice sessions holding a live connection",
		}),
		VoiceSessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "englichat_voice_session_duration_seconds",
			Help:    "Duration of voice sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "englichat_voice_state_transitions_total",
			Help: "Voice controller state transitions by target state",
		}, []string{"state"}),

		ChunksForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_audio_chunks_forwarded_total",
			Help: "Total number of microphone chunks forwarded to the live session",
		}),
		ChunkSendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_audio_chunk_send_failures_total",
			Help: "Total number of microphone chunks that could not be sent",
		}),
		ClipsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_audio_clips_scheduled_total",
			Help: "Total number of response clips scheduled for playback",
		}),
		ClipDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "englichat_audio_clip_duration_seconds",
			Help:    "Duration of scheduled response clips",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_playback_interruptions_total",
			Help: "Total number of playback interruptions",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_audio_decode_errors_total",
			Help: "Total number of response audio payloads that failed to decode",
		}),

		ChatRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_chat_requests_total",
			Help: "Total number of text chat requests sent to the model",
		}),
		ChatFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "englichat_chat_failures_total",
			Help: "Total number of failed text chat requests",
		}),
		ChatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "englichat_chat_duration_seconds",
			Help:    "Duration of text chat requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		ActiveChatSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "englichat_active_chat_sessions",
			Help: "Current number of chat sessions in the registry",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "englichat_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "englichat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		SocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "englichat_socket_clients",
			Help: "Current number of connected voice socket clients",
		}),
	}
}

// RecordSessionStarted counts a session leaving idle
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.VoiceSessionsStarted.Inc()
}

// RecordSessionFailed counts a session that went to the error state
func (m *Metrics) RecordSessionFailed(reason string) {
	if m == nil {
		return
	}
	m.VoiceSessionsFailed.WithLabelValues(reason).Inc()
}

// RecordSessionOpened marks a live connection as open
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.ActiveVoiceSessions.Inc()
}

// RecordSessionClosed marks a live connection as closed and records its lifetime
func (m *Metrics) RecordSessionClosed(d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveVoiceSessions.Dec()
	m.VoiceSessionDuration.Observe(d.Seconds())
}

// RecordTransition counts a controller state change
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// RecordChunkForwarded counts a microphone chunk handed to the session
func (m *Metrics) RecordChunkForwarded() {
	if m == nil {
		return
	}
	m.ChunksForwarded.Inc()
}

// RecordChunkSendFailure counts a microphone chunk that was dropped
func (m *Metrics) RecordChunkSendFailure() {
	if m == nil {
		return
	}
	m.ChunkSendFailures.Inc()
}

// RecordClipScheduled records a scheduled response clip
func (m *Metrics) RecordClipScheduled(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ClipsScheduled.Inc()
	m.ClipDuration.Observe(durationSeconds)
}

// RecordInterruption counts a playback interruption
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// RecordDecodeError counts an undecodable response payload
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordChatRequest records one text chat round trip
func (m *Metrics) RecordChatRequest(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ChatRequests.Inc()
	if err != nil {
		m.ChatFailures.Inc()
	}
	m.ChatDuration.Observe(d.Seconds())
}

// SetActiveChatSessions sets the current registry size
func (m *Metrics) SetActiveChatSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveChatSessions.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// SetSocketClients sets the number of connected socket clients
func (m *Metrics) SetSocketClients(count int) {
	if m == nil {
		return
	}
	m.SocketClients.Set(float64(count))
}
