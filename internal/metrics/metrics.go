package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
LEARNING: PROMETHEUS METRICS

promauto registers every collector with the default registry at package
init, so importing this package is enough for /metrics (promhttp.Handler)
to expose them. Label values must stay low-cardinality: result names and
classifications, never session or user IDs.
*/

var (
	// OperationsTotal counts submitted operations by result
	// (applied, duplicate, invalid, stale, conflict_rejected, busy, not_found).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_operations_total",
		Help: "Total submitted operations by result",
	}, []string{"result"})

	// OperationDuration tracks time spent inside the per-session critical section
	OperationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_operation_duration_seconds",
		Help:    "Apply operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50µs to ~400ms
	})

	// TransformDepth tracks how many concurrent operations an op was rebased over
	TransformDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_transform_depth",
		Help:    "Number of concurrent operations each incoming operation was transformed against",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
	})

	// ConflictsTotal counts detected conflicts by classification
	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_conflicts_total",
		Help: "Total detected conflicts by classification",
	}, []string{"classification"})

	// ActiveSessions is the number of open sessions on this node
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_active_sessions",
		Help: "Number of open collaboration sessions",
	})

	// ConnectedClients is the number of live websocket connections
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connected_clients",
		Help: "Number of connected websocket clients",
	})

	// FanoutQueueDepth is the number of events waiting for a fan-out worker
	FanoutQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_fanout_queue_depth",
		Help: "Events waiting to be published",
	})

	// FanoutErrors counts publish failures and dropped events
	FanoutErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_fanout_errors_total",
		Help: "Total fan-out failures by type",
	}, []string{"error_type"})

	// HTTPRequestDuration tracks REST latency by route template, never raw path
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collab_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
