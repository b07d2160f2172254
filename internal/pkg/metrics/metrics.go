// Package metrics provides Prometheus metrics for the fleetscope backend
// (RED + collection pipeline + circuit breaker). Scrapeable at /metrics;
// dashboards and alerts rely on these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleetscope"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// CircuitBreakerState is the current breaker state per cluster
	// (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per cluster (0=closed, 1=open, 2=half-open).",
		},
		[]string{"cluster"},
	)

	// CircuitBreakerTransitionsTotal counts breaker state transitions.
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions.",
		},
		[]string{"cluster", "from", "to"},
	)

	// CircuitBreakerFailuresTotal counts retryable failures seen by the breaker.
	CircuitBreakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_failures_total",
			Help:      "Total number of retryable failures counted by the circuit breaker.",
		},
		[]string{"cluster"},
	)

	// CollectionCyclesTotal counts collector cycles per cluster and outcome.
	CollectionCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_cycles_total",
			Help:      "Total number of metric collection cycles by cluster and outcome.",
		},
		[]string{"cluster", "outcome"},
	)

	// SamplesCollectedTotal counts raw samples ingested per cluster.
	SamplesCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_collected_total",
			Help:      "Total number of metric samples collected and stored.",
		},
		[]string{"cluster"},
	)

	// AggregationRunsTotal counts hourly aggregation runs by outcome.
	AggregationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_runs_total",
			Help:      "Total number of aggregation runs by outcome.",
		},
		[]string{"outcome"},
	)

	// RowsPrunedTotal counts rows removed by retention enforcement.
	RowsPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_pruned_total",
			Help:      "Total number of rows deleted by retention enforcement, by table.",
		},
		[]string{"table"},
	)

	// AnomaliesDetectedTotal counts detected anomalies by cluster and severity.
	AnomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Total number of anomalies detected by cluster and severity.",
		},
		[]string{"cluster", "severity"},
	)

	// ScheduledExecutionsTotal counts scheduled action executions by outcome.
	ScheduledExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_executions_total",
			Help:      "Total number of scheduled action executions by outcome.",
		},
		[]string{"outcome"},
	)

	// NotificationsDispatchedTotal counts notifications sent per channel type and outcome.
	NotificationsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Total number of notifications dispatched by channel type and outcome.",
		},
		[]string{"channel_type", "outcome"},
	)

	// WebSocketConnectionsActive is current number of WebSocket clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)
)
