package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "privacyguard",
		Name:      "photos_uploaded_total",
		Help:      "Total number of photos uploaded",
	})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "privacyguard",
		Name:      "faces_detected_total",
		Help:      "Total number of faces persisted by detection jobs",
	})

	FacesIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "privacyguard",
		Name:      "faces_indexed_total",
		Help:      "Total number of faces indexed into the identity collection",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "privacyguard",
		Name:      "jobs_processed_total",
		Help:      "Total number of job executions by kind and outcome",
	}, []string{"kind", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "privacyguard",
		Name:      "job_duration_seconds",
		Help:      "Duration of job handler executions",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"kind"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "privacyguard",
		Name:      "provider_request_duration_seconds",
		Help:      "Duration of detection provider calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"op"})

	ExportEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "privacyguard",
		Name:      "export_entries_total",
		Help:      "Total number of archive entries written by export builds",
	}, []string{"mode"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "privacyguard",
		Name:      "queue_depth",
		Help:      "Number of pending jobs in the queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "privacyguard",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "privacyguard",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
