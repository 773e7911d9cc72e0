package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts the number of Slack requests handled by the
	// verifier, by outcome and response status.
	//
	// Example usage:
	// metrics.RequestsTotal.WithLabelValues("dispatched", "OK").Inc()
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackhook_requests_total",
			Help: "Number of Slack requests handled by the verifier.",
		},
		[]string{"outcome", "status"},
	)

	// VerificationFailuresTotal counts rejected requests by reason.
	//
	// Example usage:
	// metrics.VerificationFailuresTotal.WithLabelValues("stale_timestamp").Inc()
	VerificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackhook_verification_failures_total",
			Help: "Number of requests failing signature verification.",
		},
		[]string{"reason"},
	)

	// DispatchDuration is a histogram that tracks the latency of dispatcher
	// calls.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "slackhook_dispatch_duration",
			Help: "A histogram of dispatcher latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1,
				2, 3, 5, 10},
		},
		[]string{"outcome"},
	)

	// MemorystoreRequestDuration is a histogram that tracks the latency of
	// requests from slackhook to Memorystore.
	MemorystoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "slackhook_memorystore_request_duration",
			Help: "A histogram of request latency to Memorystore.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1,
				2, 4, 6, 8, 10},
		},
		[]string{"command", "status"},
	)

	// ForwardRequestsTotal counts events forwarded to a backend by status.
	ForwardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackhook_forward_requests_total",
			Help: "Number of events forwarded to the backend.",
		},
		[]string{"status"},
	)

	// RequestHandlerDuration is a histogram that tracks the latency of each request handler.
	RequestHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "slackhook_request_handler_duration",
			Help: "A histogram of latencies for each request handler.",
		},
		[]string{"path", "code"},
	)
)
