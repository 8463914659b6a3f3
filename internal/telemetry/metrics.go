package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for the ops surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "slotwatch",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PollDuration tracks how long a single bucket poll takes end to end,
// including the provider fetch, diff, and write transaction.
var PollDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "slotwatch",
		Subsystem: "poll",
		Name:      "duration_seconds",
		Help:      "Poll duration in seconds by bucket.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	},
	[]string{"bucket"},
)

// PollInvariantViolationsTotal counts diff results that violated a declared
// invariant: an emit set with a non-zero baseline echo or prev echo.
var PollInvariantViolationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "slotwatch",
		Subsystem: "poll",
		Name:      "invariant_violations_total",
		Help:      "Total number of poll results that violated a diff invariant.",
	},
)

// EventsEmittedTotal counts events appended to the event log by type.
var EventsEmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slotwatch",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Total number of events appended to the event log, by event type.",
	},
	[]string{"event_type"},
)

// DedupSuppressedTotal counts NEW_DROP events suppressed by the TTL dedupe
// check (Redis cache hit or database fallback) before reaching the
// database's ON CONFLICT check.
var DedupSuppressedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "slotwatch",
		Subsystem: "dedup",
		Name:      "suppressed_total",
		Help:      "Total number of NEW_DROP events suppressed by the dedupe cache.",
	},
)

// AggregationRunsTotal counts completed Aggregator runs.
var AggregationRunsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "slotwatch",
		Subsystem: "aggregation",
		Name:      "runs_total",
		Help:      "Total number of completed aggregation runs.",
	},
)

// RetentionDeletedRowsTotal counts rows deleted by the retention job, by table.
var RetentionDeletedRowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "slotwatch",
		Subsystem: "retention",
		Name:      "deleted_rows_total",
		Help:      "Total number of rows deleted by the retention job, by table.",
	},
	[]string{"table"},
)

// SchedulerLeaderGauge reports leader-election state: 1 when this instance
// holds the scheduler advisory lock, 0 when it does not.
var SchedulerLeaderGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "slotwatch",
		Subsystem: "scheduler",
		Name:      "is_leader",
		Help:      "1 if this instance currently holds the scheduler leader lock, else 0.",
	},
)

// All returns all slotwatch-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PollDuration,
		PollInvariantViolationsTotal,
		EventsEmittedTotal,
		DedupSuppressedTotal,
		AggregationRunsTotal,
		RetentionDeletedRowsTotal,
		SchedulerLeaderGauge,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors passed
// as arguments (typically the result of All()).
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
