// Package metrics exposes the subsystem's Prometheus instrumentation:
// pipeline queue depth and drops, store size and append latency, and
// cache hit rate. Every component below is registered with the default
// registry at package init, matching the teacher's promauto pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StageQueueDepth is the current number of records buffered on an
	// async stage's queue.
	StageQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logcore_stage_queue_depth",
			Help: "Current number of records buffered on an async stage's queue",
		},
		[]string{"stage"},
	)

	// StageQueueCapacity is the configured bound of an async stage's
	// queue, published once at stage initialization.
	StageQueueCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logcore_stage_queue_capacity",
			Help: "Configured capacity of an async stage's queue",
		},
		[]string{"stage"},
	)

	// RecordsDroppedTotal counts records an async stage's overflow
	// policy discarded rather than enqueued or delivered.
	RecordsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logcore_records_dropped_total",
			Help: "Total records dropped by an async stage's overflow policy",
		},
		[]string{"stage", "reason"},
	)

	// RecordsProcessedTotal counts records a stage has finished
	// processing, successfully or not.
	RecordsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logcore_records_processed_total",
			Help: "Total records processed by a stage",
		},
		[]string{"stage"},
	)

	// BatchDispatchDuration times a ProcessAsync batch call.
	BatchDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logcore_batch_dispatch_duration_seconds",
			Help:    "Time spent in a stage's batch dispatch call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ForwarderCircuitState mirrors a forwarding stage's circuit
	// breaker state: 0 closed, 1 open, 2 half-open.
	ForwarderCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logcore_forwarder_circuit_state",
			Help: "Forwarder circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"stage"},
	)

	// StoreRecordCount is the current number of rows held by the
	// store engine.
	StoreRecordCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logcore_store_record_count",
		Help: "Current number of records held by the store engine",
	})

	// StoreSizeBytes is the on-disk size of the store engine's file.
	StoreSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logcore_store_size_bytes",
		Help: "On-disk size of the store engine's backing file",
	})

	// StoreAppendDuration times a single AppendBatch transaction.
	StoreAppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "logcore_store_append_duration_seconds",
		Help:    "Time spent committing an append transaction",
		Buckets: prometheus.DefBuckets,
	})

	// StorePruneTotal counts rows removed by count- or age-based prune.
	StorePruneTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logcore_store_pruned_total",
			Help: "Total records removed by store pruning",
		},
		[]string{"reason"},
	)

	// CacheHitsTotal and CacheMissesTotal together give the page
	// cache's hit rate.
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcore_cache_hits_total",
		Help: "Total page cache hits",
	})
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcore_cache_misses_total",
		Help: "Total page cache misses",
	})

	// CachePagesResident is the current number of pages held in the
	// LRU cache.
	CachePagesResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logcore_cache_pages_resident",
		Help: "Current number of pages resident in the page cache",
	})

	// InternedStringsTotal is the number of distinct strings currently
	// held in the intern table.
	InternedStringsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logcore_interned_strings_total",
		Help: "Current number of distinct strings held in the intern table",
	})
)

// Handler returns the standard promhttp exposition handler, wired to
// the admin surface's /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
