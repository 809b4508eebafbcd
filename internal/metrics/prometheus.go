package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the bridge service.
type Metrics struct {
	// Session lifecycle
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionsEvicted prometheus.Counter
	SessionDuration prometheus.Histogram

	// Chunk ingestion
	ChunksIngested   *prometheus.CounterVec
	ChunksDuplicate  *prometheus.CounterVec
	ChunksRejected   *prometheus.CounterVec
	ChunkPayloadSize prometheus.Histogram

	// Buffer pressure
	AudioSamplesDropped prometheus.Counter
	IMUSamplesDropped   prometheus.Counter

	// Transcript gate
	GatePartials        prometheus.Counter
	GateFinals          prometheus.Counter
	GateForcedFinals    *prometheus.CounterVec
	GateFinalizeLatency prometheus.Histogram
	GateStabilityScore  prometheus.Histogram

	// Turns
	TurnsCompleted prometheus.Counter
	TurnsFailed    prometheus.Counter
	TurnsCancelled prometheus.Counter
	TurnDuration   prometheus.Histogram
	TurnAudioMS    prometheus.Histogram

	// Recognizer client
	RecognizerRequests  prometheus.Counter
	RecognizerSuccesses prometheus.Counter
	RecognizerFailures  prometheus.Counter
	RecognizerRetries   prometheus.Counter
	RecognizerDuration  prometheus.Histogram

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the given registerer.
// Tests pass a fresh registry so parallel packages never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Current number of active streaming sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_closed_total",
			Help: "Total number of sessions closed by the client",
		}),
		SessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_evicted_total",
			Help: "Total number of idle sessions evicted by the sweep",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_session_duration_seconds",
			Help:    "Lifetime of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		ChunksIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_chunks_ingested_total",
			Help: "Total number of chunks accepted into session buffers",
		}, []string{"chunk_type"}),
		ChunksDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_chunks_duplicate_total",
			Help: "Total number of duplicate chunks acknowledged as no-ops",
		}, []string{"chunk_type"}),
		ChunksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_chunks_rejected_total",
			Help: "Total number of chunks rejected by validation",
		}, []string{"chunk_type", "reason"}),
		ChunkPayloadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_chunk_payload_bytes",
			Help:    "Size of accepted chunk payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10), // 256B to ~64MB
		}),

		AudioSamplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_audio_samples_dropped_total",
			Help: "Total audio samples dropped by the bounded accumulator (oldest first)",
		}),
		IMUSamplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_imu_samples_dropped_total",
			Help: "Total IMU samples dropped by the bounded accumulator (oldest first)",
		}),

		GatePartials: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_gate_partials_total",
			Help: "Total partial hypotheses observed by the stability gate",
		}),
		GateFinals: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_gate_finals_total",
			Help: "Total transcripts finalized by stability agreement",
		}),
		GateForcedFinals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_gate_forced_finals_total",
			Help: "Total transcripts force-finalized, by trigger",
		}, []string{"reason"}),
		GateFinalizeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_gate_finalize_latency_seconds",
			Help:    "Time from first hypothesis of an utterance to finalization",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		GateStabilityScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_gate_stability_score",
			Help:    "Token-level stability score between consecutive hypotheses",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_turns_completed_total",
			Help: "Total turns completed successfully",
		}),
		TurnsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_turns_failed_total",
			Help: "Total turns that returned an error",
		}),
		TurnsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_turns_cancelled_total",
			Help: "Total turns aborted by a session close",
		}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_turn_duration_seconds",
			Help:    "End-to-end turn completion duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TurnAudioMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_turn_audio_milliseconds",
			Help:    "Milliseconds of audio drained per turn",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		}),

		RecognizerRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recognizer_requests_total",
			Help: "Total Recognizer requests sent",
		}),
		RecognizerSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recognizer_successes_total",
			Help: "Total successful Recognizer requests",
		}),
		RecognizerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recognizer_failures_total",
			Help: "Total failed Recognizer requests",
		}),
		RecognizerRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recognizer_retries_total",
			Help: "Total Recognizer request retries",
		}),
		RecognizerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_recognizer_duration_seconds",
			Help:    "Duration of Recognizer requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// NewDefault registers on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// RecordSessionCreated increments session creation counters.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionClosed records a client-initiated close.
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.SessionsClosed.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionEvicted records an idle-sweep eviction.
func (m *Metrics) RecordSessionEvicted(durationSeconds float64) {
	m.SessionsEvicted.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkIngested records an accepted chunk.
func (m *Metrics) RecordChunkIngested(chunkType string, payloadBytes int) {
	m.ChunksIngested.WithLabelValues(chunkType).Inc()
	m.ChunkPayloadSize.Observe(float64(payloadBytes))
}

// RecordChunkDuplicate records a duplicate acknowledgement.
func (m *Metrics) RecordChunkDuplicate(chunkType string) {
	m.ChunksDuplicate.WithLabelValues(chunkType).Inc()
}

// RecordChunkRejected records a validation rejection.
func (m *Metrics) RecordChunkRejected(chunkType, reason string) {
	m.ChunksRejected.WithLabelValues(chunkType, reason).Inc()
}

// RecordAudioDropped adds to the dropped-audio counter.
func (m *Metrics) RecordAudioDropped(samples int) {
	if samples > 0 {
		m.AudioSamplesDropped.Add(float64(samples))
	}
}

// RecordIMUDropped adds to the dropped-IMU counter.
func (m *Metrics) RecordIMUDropped(samples int) {
	if samples > 0 {
		m.IMUSamplesDropped.Add(float64(samples))
	}
}

// RecordGatePartial records one observed partial and its stability score.
func (m *Metrics) RecordGatePartial(stability float64) {
	m.GatePartials.Inc()
	m.GateStabilityScore.Observe(stability)
}

// RecordGateFinal records a stability-agreed finalization.
func (m *Metrics) RecordGateFinal(latencySeconds float64) {
	m.GateFinals.Inc()
	m.GateFinalizeLatency.Observe(latencySeconds)
}

// RecordGateForcedFinal records a forced finalization by trigger.
func (m *Metrics) RecordGateForcedFinal(reason string, latencySeconds float64) {
	m.GateForcedFinals.WithLabelValues(reason).Inc()
	m.GateFinalizeLatency.Observe(latencySeconds)
}

// RecordTurnCompleted records a successful turn.
func (m *Metrics) RecordTurnCompleted(durationSeconds float64, audioMS int64) {
	m.TurnsCompleted.Inc()
	m.TurnDuration.Observe(durationSeconds)
	m.TurnAudioMS.Observe(float64(audioMS))
}

// RecordTurnFailed records a failed turn.
func (m *Metrics) RecordTurnFailed() {
	m.TurnsFailed.Inc()
}

// RecordTurnCancelled records a turn aborted by a close.
func (m *Metrics) RecordTurnCancelled() {
	m.TurnsCancelled.Inc()
}

// RecordRecognizerSuccess records a successful Recognizer request.
func (m *Metrics) RecordRecognizerSuccess(durationSeconds float64) {
	m.RecognizerRequests.Inc()
	m.RecognizerSuccesses.Inc()
	m.RecognizerDuration.Observe(durationSeconds)
}

// RecordRecognizerFailure records a failed Recognizer request.
func (m *Metrics) RecordRecognizerFailure(durationSeconds float64) {
	m.RecognizerRequests.Inc()
	m.RecognizerFailures.Inc()
	m.RecognizerDuration.Observe(durationSeconds)
}

// RecordRecognizerRetry increments the retry counter.
func (m *Metrics) RecordRecognizerRetry() {
	m.RecognizerRetries.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
