package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Force engine metrics
	EnginePhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_phase_duration_seconds",
			Help:    "Duration of one force evaluation phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"phase"}, // phase: total, build, propagate, evaluate
	)

	EngineEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_evaluations_total",
			Help: "Total number of force evaluations by method",
		},
		[]string{"method"}, // method: multipole, direct
	)

	EngineTreeCells = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_tree_cells",
			Help:    "Quadtree cells built per force evaluation",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		},
	)

	EngineTreeDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_tree_depth",
			Help:    "Quadtree depth per force evaluation",
			Buckets: prometheus.LinearBuckets(1, 4, 14),
		},
	)

	// Layout run metrics
	LayoutRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_runs_total",
			Help: "Total number of layout runs",
		},
		[]string{"status"}, // status: success, failed
	)

	LayoutRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layout_run_duration_seconds",
			Help:    "Duration of full layout runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	LayoutNodesPositioned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_nodes_positioned",
			Help: "Nodes positioned by the most recent layout run",
		},
	)

	LayoutPositionsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "layout_positions_persisted_total",
			Help: "Total number of node positions written to the store",
		},
	)

	// Database operation metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	DBOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)

	// API cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)

	// Graph size gauges, sampled by the collector
	GraphNodesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graph_nodes_total",
			Help: "Number of nodes currently stored",
		},
	)

	GraphLinksTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "graph_links_total",
			Help: "Number of links currently stored",
		},
	)

	LayoutLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_last_run_timestamp_seconds",
			Help: "Unix time the most recent layout run finished",
		},
	)

	MetricsCollectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors while sampling store metrics",
		},
	)
)
