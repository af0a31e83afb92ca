// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ThreadsTotal tracks total threads created.
	ThreadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_threads_total",
			Help: "Total conversation threads created",
		},
	)

	// MessagesTotal tracks total messages committed, by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_messages_total",
			Help: "Total messages committed to threads",
		},
		[]string{"role"},
	)

	// StreamsActive tracks currently active streaming exchanges.
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_streams_active",
			Help: "Number of active streaming exchanges",
		},
	)

	// StreamDuration tracks streaming exchange duration.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_stream_duration_seconds",
			Help:    "Streaming exchange duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "status"},
	)

	// StreamChunksTotal tracks snapshot chunks delivered to observers.
	StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_stream_chunks_total",
			Help: "Total snapshot chunks delivered to observers",
		},
	)

	// StreamsCancelled tracks user-initiated stream cancellations.
	StreamsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_streams_cancelled_total",
			Help: "Total user-initiated stream cancellations",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// AttachmentsRejected tracks attachments rejected at staging time.
	AttachmentsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_attachments_rejected_total",
			Help: "Attachments rejected at staging time",
		},
		[]string{"reason"},
	)

	// MentionDispatches tracks messages routed by @mention.
	MentionDispatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_mention_dispatches_total",
			Help: "Messages dispatched to a mentioned assistant",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStream records metrics for a completed streaming exchange.
func RecordStream(provider, status string, duration float64) {
	StreamDuration.WithLabelValues(provider, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
