package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTranslated counts predicates pushed down to the store.
	QueriesTranslated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_queries_translated_total",
		Help: "Predicates translated into native filters",
	})
	// PredicatesDeclined counts predicates left to the host.
	PredicatesDeclined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_predicates_declined_total",
		Help: "Predicates the host must evaluate itself",
	})
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mongoscan_connections_active",
		Help: "Connections currently checked out of a pool",
	})
	ConnectionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_connections_created_total",
		Help: "Connections dialed by all pools",
	})
	// PoolExhausted counts acquire calls rejected because a pool was full.
	PoolExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_pool_exhausted_total",
		Help: "Acquire calls rejected at pool capacity",
	})
	SchemaCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_schema_cache_hits_total",
		Help: "Schema lookups served from cache",
	})
	SchemaCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_schema_cache_misses_total",
		Help: "Schema lookups that sampled the collection",
	})
	DocumentsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_documents_scanned_total",
		Help: "Documents read from cursors",
	})
	RowsReturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mongoscan_rows_returned_total",
		Help: "Rows handed to the host, count rows included",
	})
	// ScansTotal counts scans by mode: rows or count.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongoscan_scans_total",
			Help: "Scans started by mode",
		},
		[]string{"mode"},
	)
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mongoscan_scan_duration_seconds",
			Help:    "Time between begin and end of a scan",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)
