// Package metrics defines the Prometheus instrumentation exposed by the
// scheduler daemon, grounded on the teacher's cmd/worker promauto vectors
// and repurposed for scheduling instead of task execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FiringsDispatched counts firings promoted from the Due-Time Index into
// an RQ job, labeled by outcome ("enqueued", "store_error", "webapp_error",
// "redis_error").
var FiringsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "btu_scheduler_firings_dispatched_total",
	Help: "Total number of due-time firings processed by the Due-Time Runner",
}, []string{"outcome"})

// DrainLatency tracks how long the FIFO Drainer takes to pop one schedule
// id, re-project it, and write its next firing into the Due-Time Index.
var DrainLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "btu_scheduler_drain_latency_seconds",
	Help:    "Time spent draining and re-projecting one FIFO entry",
	Buckets: prometheus.DefBuckets,
})

// DueIndexDepth reports the current cardinality of the Due-Time Index
// sorted set, sampled periodically by the engine's metrics collector.
var DueIndexDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "btu_scheduler_due_index_depth",
	Help: "Number of pending firings currently in the Due-Time Index",
})

// FIFOQueueDepth reports the current depth of the in-process FIFO queue.
var FIFOQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "btu_scheduler_fifo_queue_depth",
	Help: "Number of schedule ids currently pending re-projection",
})

// IPCRequestsTotal counts Control Plane requests by request_type and
// outcome ("ok", "rejected", "rate_limited", "error").
var IPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "btu_scheduler_ipc_requests_total",
	Help: "Total number of Control Plane requests received over the Unix domain socket",
}, []string{"request_type", "outcome"})

// RedisErrorsTotal counts Redis command failures by operation, surfaced
// across dueindex, rq, and the IPC rate limiter.
var RedisErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "btu_scheduler_redis_errors_total",
	Help: "Total number of Redis command failures",
}, []string{"op"})
