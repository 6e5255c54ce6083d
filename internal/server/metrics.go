package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbid_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nbid_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Transform processing metrics
	transformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbid_transform_requests_total",
			Help: "Total number of transform requests",
		},
		[]string{"type", "status"}, // type: sync, batch
	)

	transformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nbid_transform_duration_seconds",
			Help:    "Transform processing duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"type"},
	)

	imagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbid_images_processed_total",
			Help: "Total number of images run through the transform pipeline",
		},
		[]string{"outcome"}, // outcome: success, failure
	)

	// Batch job metrics
	jobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbid_jobs_active",
			Help: "Number of batch jobs currently running",
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nbid_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nbid_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbid_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
