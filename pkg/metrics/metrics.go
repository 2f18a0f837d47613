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
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ParseDuration tracks intent parser latency.
	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_parse_duration_seconds",
			Help:    "Intent parser call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// PipelineEventsTotal counts handled events by kind and resulting phase.
	PipelineEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_events_total",
			Help: "Inbound events handled by the pipeline",
		},
		[]string{"kind", "outcome"},
	)

	// DuplicatesDropped counts redelivered events that were ignored.
	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_duplicates_dropped_total",
			Help: "Redelivered events dropped by the deduplicator",
		},
	)

	// WritesTotal counts executed writes by operation and audit outcome.
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writes_total",
			Help: "Writes executed after confirmation",
		},
		[]string{"operation", "outcome"},
	)

	// StatesSwept counts expired conversation states and dedup entries removed.
	StatesSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_swept_total",
			Help: "Expired entries removed by the janitor",
		},
		[]string{"store"},
	)

	// AuditSinkFailures counts audit records a sink failed to accept.
	AuditSinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sink_failures_total",
			Help: "Audit records that could not be delivered",
		},
		[]string{"sink"},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in NATS stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordParse records metrics for one parser call.
func RecordParse(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	ParseDuration.WithLabelValues(provider, status).Observe(duration)
	if model == "" {
		return
	}
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordEvent records the outcome of one pipeline pass.
func RecordEvent(kind, outcome string) {
	PipelineEventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordWrite records an executed write.
func RecordWrite(operation, outcome string) {
	WritesTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordStreamInfo records the size of a JetStream stream.
func RecordStreamInfo(stream string, msgs, bytes uint64) {
	NATSStreamMessages.WithLabelValues(stream).Set(float64(msgs))
	NATSStreamBytes.WithLabelValues(stream).Set(float64(bytes))
}
