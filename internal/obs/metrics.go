// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics, renamed from the teacher's job-queue vocabulary to the ETL
// pipeline's own (spec.md §4.7): files discovered/completed/failed,
// records ingested, parse failures, warehouse insert latency, queue
// depth (the discovery->worker dispatch channel, not a Redis list),
// circuit breaker state/trips, stale-claim reclamation, active workers.
var (
	FilesDiscovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "files_discovered_total",
		Help: "Total number of log files discovered for processing",
	})
	FilesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "files_completed_total",
		Help: "Total number of log files fully processed and finished",
	})
	FilesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "files_failed_total",
		Help: "Total number of log files that ended in a failed state",
	})
	RecordsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "records_ingested_total",
		Help: "Total number of log records successfully inserted into the warehouse",
	})
	ParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parse_failures_total",
		Help: "Total number of log lines that failed to parse",
	})
	WarehouseInsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warehouse_insert_duration_seconds",
		Help:    "Histogram of warehouse batch insert durations",
		Buckets: prometheus.DefBuckets,
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current depth of the discovery-to-worker dispatch channel",
	})
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Count of times the warehouse circuit breaker transitioned to Open",
	})
	StaleFilesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stale_files_reclaimed_total",
		Help: "Total number of in-progress claims reclaimed after exceeding stale_after",
	})
	WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active",
		Help: "Number of active file-processing worker goroutines",
	})
)

func init() {
	prometheus.MustRegister(
		FilesDiscovered, FilesCompleted, FilesFailed,
		RecordsIngested, ParseFailures,
		WarehouseInsertDuration, QueueDepth,
		CircuitBreakerState, CircuitBreakerTrips,
		StaleFilesReclaimed, WorkerActive,
	)
}
