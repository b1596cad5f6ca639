// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vessel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vessel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Document store
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vessel_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vessel_store_operation_errors_total",
			Help: "Total number of failed document store operations",
		},
		[]string{"backend", "operation"},
	)

	// Telemetry
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vessel_ingest_total",
			Help: "Telemetry ingest attempts by result",
		},
		[]string{"source", "result"},
	)

	LastIngestTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vessel_last_ingest_timestamp_seconds",
			Help: "Unix time of the last successful telemetry ingest",
		},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation records the outcome of one document store call.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordIngest records an ingest attempt from source ("http" or "nats").
func RecordIngest(source string, err error) {
	if err != nil {
		IngestTotal.WithLabelValues(source, "error").Inc()
		return
	}
	IngestTotal.WithLabelValues(source, "success").Inc()
	LastIngestTimestamp.SetToCurrentTime()
}
