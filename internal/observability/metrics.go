package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Voice capture
	recordingSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_recording_sessions_total",
		Help: "Recording cycles by outcome",
	}, []string{"outcome"})

	speechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_speech_segments_total",
		Help: "Final speech segments appended to transcripts",
	})

	suppressedEngineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_speech_engine_suppressed_errors_total",
		Help: "Benign speech engine conditions that were ignored",
	}, []string{"code"})

	// Structured model calls
	modelAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_model_attempts_total",
		Help: "Model invocation attempts by outcome",
	}, []string{"outcome"})

	modelLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_model_latency_seconds",
		Help:    "Latency of a single model invocation",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
	})

	retryBackoff = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_model_retry_backoff_seconds",
		Help:    "Backoff waited before retrying a rate-limited call",
		Buckets: []float64{0.5, 1, 2, 4, 8},
	})

	queryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_queries_total",
		Help: "Structured queries by mode and final result",
	}, []string{"mode", "result"})

	// History
	historyEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_history_evictions_total",
		Help: "History entries trimmed past capacity by backend",
	}, []string{"backend"})

	historyRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_history_records_total",
		Help: "History writes by backend and status",
	}, []string{"backend", "status"})

	// Connections
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_active_connections",
		Help: "Open assistant WebSocket connections",
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "assistant_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RecordRecordingOutcome counts a finished recording cycle
func RecordRecordingOutcome(outcome string) {
	recordingSessions.WithLabelValues(outcome).Inc()
}

// RecordSpeechSegment counts an appended final segment
func RecordSpeechSegment() {
	speechSegments.Inc()
}

// RecordSuppressedEngineError counts a benign engine condition
func RecordSuppressedEngineError(code string) {
	suppressedEngineErrors.WithLabelValues(code).Inc()
}

// RecordModelAttempt records one model invocation and its latency
func RecordModelAttempt(outcome string, latency time.Duration) {
	modelAttempts.WithLabelValues(outcome).Inc()
	modelLatency.Observe(latency.Seconds())
}

// RecordRetryBackoff records a backoff delay before a retry
func RecordRetryBackoff(d time.Duration) {
	retryBackoff.Observe(d.Seconds())
}

// RecordQueryResult records the final outcome of a structured query
func RecordQueryResult(mode, result string) {
	queryResults.WithLabelValues(mode, result).Inc()
}

// RecordHistoryWrite records a history write
func RecordHistoryWrite(backend string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	historyRecords.WithLabelValues(backend, status).Inc()
}

// RecordHistoryEvictions counts entries dropped to keep history within capacity
func RecordHistoryEvictions(backend string, n int64) {
	if n > 0 {
		historyEvictions.WithLabelValues(backend).Add(float64(n))
	}
}

// ConnectionOpened increments the active connection gauge
func ConnectionOpened() {
	activeConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge
func ConnectionClosed() {
	activeConnections.Dec()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
