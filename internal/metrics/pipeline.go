package metrics

import "github.com/prometheus/client_golang/prometheus"

// Task pipeline Prometheus metrics.
var (
	TasksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_dispatched_total",
			Help:      "Total number of tasks enqueued",
		},
		[]string{"task", "band"},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks processed to completion",
		},
		[]string{"task", "band"},
	)

	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_failed_total",
			Help:      "Total number of task executions that ended in error",
		},
		[]string{"task", "band"},
	)

	TasksRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_retried_total",
			Help:      "Total number of task retries, including schema race retries",
		},
		[]string{"task", "reason"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task", "band"},
	)

	TasksReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tasks_reclaimed_total",
			Help:      "Total number of stale pending tasks claimed from dead consumers",
		},
	)
)

// Schema registry Prometheus metrics.
var (
	SchemaTablesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "schema_tables_created_total",
			Help:      "Total number of index tables created",
		},
	)

	SchemaTablesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "schema_tables_dropped_total",
			Help:      "Total number of index tables dropped",
		},
	)

	SchemaANNBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "schema_ann_builds_total",
			Help:      "Total number of ANN index builds executed",
		},
		[]string{"status"}, // "ok" / "error"
	)

	SchemaLayoutCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "schema_layout_cache_total",
			Help:      "Layout cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Worker control-plane Prometheus metrics.
var (
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "broadcasts_total",
			Help:      "Total number of reload broadcasts sent",
		},
		[]string{"outcome"}, // "acked" / "timeout"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers task, schema and broadcast metrics.
// Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(TasksDispatchedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TasksRetriedTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(TasksReclaimedTotal)
	prometheus.MustRegister(SchemaTablesCreatedTotal)
	prometheus.MustRegister(SchemaTablesDroppedTotal)
	prometheus.MustRegister(SchemaANNBuildsTotal)
	prometheus.MustRegister(SchemaLayoutCacheTotal)
	prometheus.MustRegister(BroadcastsTotal)
	pipelineMetricsRegistered = true
}
