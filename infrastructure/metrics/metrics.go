// Package metrics provides Prometheus metrics for the IR graph store.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the store.
type Metrics struct {
	QueriesTotal   *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	EngineRetries  *prometheus.CounterVec

	MigrationRunsTotal    *prometheus.CounterVec
	MigrationBatchesTotal *prometheus.CounterVec
	MigrationDuration     *prometheus.HistogramVec

	HealthChecksTotal  *prometheus.CounterVec
	HealthFindingsOpen *prometheus.GaugeVec

	LoaderCacheHits   prometheus.Counter
	LoaderCacheMisses prometheus.Counter
	LoaderLoadsTotal  *prometheus.CounterVec
}

// New creates Metrics registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates Metrics registered against a custom registerer.
// A nil registerer skips registration (useful in tests that construct
// multiple instances in the same process).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "irgraph_queries_total", Help: "Total graph engine statements executed"},
			[]string{"operation", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "irgraph_query_duration_seconds",
				Help:    "Graph engine statement duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		EngineRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "irgraph_engine_retries_total", Help: "Transient engine error retries"},
			[]string{"operation"},
		),
		MigrationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "irgraph_migration_runs_total", Help: "Migration runs by status"},
			[]string{"migration_id", "status", "mode"},
		),
		MigrationBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "irgraph_migration_batches_total", Help: "Migration checkpoint batches by outcome"},
			[]string{"migration_id", "status"},
		),
		MigrationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "irgraph_migration_duration_seconds",
				Help:    "Migration run duration in seconds",
				Buckets: []float64{.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"migration_id", "mode"},
		),
		HealthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "irgraph_health_checks_total", Help: "Health checks run by severity"},
			[]string{"severity"},
		),
		HealthFindingsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "irgraph_health_findings_open", Help: "Open findings from the last health sweep"},
			[]string{"category"},
		),
		LoaderCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "irgraph_loader_cache_hits_total", Help: "Full IR loader cache hits"},
		),
		LoaderCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "irgraph_loader_cache_misses_total", Help: "Full IR loader cache misses"},
		),
		LoaderLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "irgraph_loader_loads_total", Help: "Full IR loads by outcome"},
			[]string{"status"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.QueriesTotal, m.QueryDuration, m.EngineRetries,
			m.MigrationRunsTotal, m.MigrationBatchesTotal, m.MigrationDuration,
			m.HealthChecksTotal, m.HealthFindingsOpen,
			m.LoaderCacheHits, m.LoaderCacheMisses, m.LoaderLoadsTotal,
		)
	}

	return m
}

// RecordQuery records a graph engine statement execution.
func (m *Metrics) RecordQuery(operation, status string, duration time.Duration) {
	m.QueriesTotal.WithLabelValues(operation, status).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMigrationRun records a completed migration run.
func (m *Metrics) RecordMigrationRun(migrationID, status, mode string, duration time.Duration) {
	m.MigrationRunsTotal.WithLabelValues(migrationID, status, mode).Inc()
	m.MigrationDuration.WithLabelValues(migrationID, mode).Observe(duration.Seconds())
}

// RecordMigrationBatch records one checkpoint batch outcome.
func (m *Metrics) RecordMigrationBatch(migrationID, status string) {
	m.MigrationBatchesTotal.WithLabelValues(migrationID, status).Inc()
}

// RecordHealthCheck records a completed health sweep's worst severity.
func (m *Metrics) RecordHealthCheck(severity string) {
	m.HealthChecksTotal.WithLabelValues(severity).Inc()
}

// Global metrics instance.
var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes the global Metrics instance exactly once.
func Init() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New()
	}
	return global
}

// Global returns the global Metrics instance, creating a fallback if unset.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New()
	}
	return global
}
