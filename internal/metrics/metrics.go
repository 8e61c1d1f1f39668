// Package metrics is the Prometheus surface for the streaming core: the
// teacher's download-queue counters renamed and re-scoped to play/stream
// outcomes, token refreshes, and the two best-effort background failure
// kinds from the error taxonomy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlayRequestsTotal tracks play(id) outcomes: hit, miss, error.
	PlayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "play_requests_total",
			Help: "Total number of play requests by outcome",
		},
		[]string{"outcome"},
	)

	// StreamDuration tracks wall-clock duration of a /stream or /listen call.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_duration_seconds",
			Help:    "Duration of a stream/listen call in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"endpoint"},
	)

	// StreamBytesTotal tracks total bytes streamed to callers.
	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_bytes_total",
			Help: "Total bytes streamed to callers",
		},
	)

	// TokenRefreshTotal tracks C4 refresh attempts by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refresh_total",
			Help: "Total number of token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamRequestDuration tracks C3 gateway call duration by endpoint
	// (the JSON-RPC method name or "media_gateway").
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// CipherErrorsTotal tracks Blowfish init/decrypt failures.
	CipherErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipher_errors_total",
			Help: "Total number of cipher failures during descrambling",
		},
	)

	// ObjectStorePutFailuresTotal tracks tee write-back failures.
	ObjectStorePutFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "object_store_put_failures_total",
			Help: "Total number of background object store upload failures",
		},
	)

	// ListenRecordFailuresTotal tracks the detached listen-record side effect.
	ListenRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listen_record_failures_total",
			Help: "Total number of background listen-record failures",
		},
	)
)

// RecordPlay records a play(id) outcome.
func RecordPlay(outcome string) {
	PlayRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordStream records a completed /stream or /listen call.
func RecordStream(endpoint string, duration time.Duration, bytes int64) {
	StreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	StreamBytesTotal.Add(float64(bytes))
}

// RecordTokenRefresh records a C4 refresh attempt.
func RecordTokenRefresh(outcome string) {
	TokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records one C3/C5 upstream call.
func RecordUpstreamRequest(endpoint string, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCipherError records a descrambling failure.
func RecordCipherError() {
	CipherErrorsTotal.Inc()
}

// RecordObjectStorePutFailure records a failed tee write-back.
func RecordObjectStorePutFailure() {
	ObjectStorePutFailuresTotal.Inc()
}

// RecordListenRecordFailure records a failed detached listen record.
func RecordListenRecordFailure() {
	ListenRecordFailuresTotal.Inc()
}
