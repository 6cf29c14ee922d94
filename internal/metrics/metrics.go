// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Project permission decisions by required role and outcome",
		},
		[]string{"required", "outcome"},
	)

	ImagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_images_stored_total",
			Help: "Inline images written to the blob store",
		},
	)

	BlobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_blobs_swept_total",
			Help: "Unreferenced image blobs removed by the sweeper",
		},
	)
)

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordAuthzDecision counts an allow/deny/unauthenticated outcome.
func RecordAuthzDecision(required, outcome string) {
	AuthzDecisions.WithLabelValues(required, outcome).Inc()
}
