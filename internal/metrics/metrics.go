// Package metrics provides Prometheus metrics for the weather stream service.
// It tracks live stream connections, alert polling and upstream API calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "weather_stream"
)

// Stream metrics track live SSE connections.
var (
	// ConnectionsActive is the current number of registered stream connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_connections_active",
			Help:      "Number of active SSE connections",
		},
	)

	// ConnectionsTotal counts connection lifecycle transitions.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sse_connections_total",
			Help:      "Total SSE connections by status",
		},
		[]string{"status"}, // opened, closed, expired, rejected
	)

	// MonitoredLocations is the current number of distinct watched locations.
	MonitoredLocations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_locations",
			Help:      "Number of distinct locations with at least one subscriber",
		},
	)
)

// Alert metrics track polling and fan-out.
var (
	// AlertChecksTotal counts single-location alert checks.
	AlertChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_checks_total",
			Help:      "Total alert checks by origin and result",
		},
		[]string{"origin", "result"}, // origin: monitor, session; result: success, failure
	)

	// NewAlertsTotal counts alerts seen for the first time.
	NewAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_alerts_total",
			Help:      "Total alerts detected as new after deduplication",
		},
	)

	// AlertDeliveriesTotal counts alert batches handed to connections.
	AlertDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_deliveries_total",
			Help:      "Total alert batches delivered to stream connections",
		},
		[]string{"result"}, // delivered, dropped
	)

	// AlertPublishesTotal counts new-alert batches sent downstream.
	AlertPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publishes_total",
			Help:      "Total new-alert batches published downstream",
		},
		[]string{"result"}, // success, failure, dropped
	)
)

// Upstream metrics track calls to NWS and geocoders.
var (
	// UpstreamRequestsTotal counts outbound HTTP requests.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total upstream API requests",
		},
		[]string{"upstream", "endpoint", "result"},
	)

	// UpstreamRequestDuration measures outbound request latency including retries.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Time spent on upstream API requests in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream", "endpoint"},
	)

	// CacheOperationsTotal counts grid-point and alert cache operations.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total cache operations",
		},
		[]string{"cache", "result"}, // result: hit, miss, error
	)
)
