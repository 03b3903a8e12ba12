// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeFailed   = "failed"
)

var (
	// FramesTotal counts frames pulled from the capture source by framing
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesper_frames_total",
			Help: "Total number of captured frames",
		},
		[]string{"framing"},
	)

	// DecodeFailuresTotal counts frames with a header decode failure by layer
	DecodeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesper_decode_failures_total",
			Help: "Total number of frames whose headers could not be fully decoded",
		},
		[]string{"stage"},
	)

	// RecordsTotal counts flow records built by protocol label
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesper_records_total",
			Help: "Total number of flow records built",
		},
		[]string{"protocol"},
	)

	// EncodeErrorsTotal counts records that could not be serialized
	EncodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesper_encode_errors_total",
			Help: "Total number of flow records that failed to serialize",
		},
		[]string{"codec"},
	)

	// PublishTotal counts publish attempts by sink and outcome
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesper_publish_total",
			Help: "Total number of publish attempts",
		},
		[]string{"sink", "outcome"},
	)

	// PublishLatencySeconds measures time from publish call to outcome
	PublishLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vesper_publish_latency_seconds",
			Help:    "Latency of publish calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 17), // 100µs to ~6.5s
		},
		[]string{"sink"},
	)
)
