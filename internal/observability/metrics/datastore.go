// Package metrics provides Prometheus metrics for taxondb observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket parameters shared by duration metrics.
const (
	bucketStart1ms = 0.001
	bucketFactor2  = 2.0
	bucketCount15  = 15 // 1ms to ~32s
)

// DatastoreMetrics contains Prometheus metrics for datastore operations.
type DatastoreMetrics struct {
	registry *prometheus.Registry

	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec

	attachOperationsTotal *prometheus.CounterVec

	cacheOperationsTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	for _, c := range m.collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxondb_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"}, // status: success, error
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taxondb_db_operation_duration_seconds",
			Help:    "Time taken for database operations",
			Buckets: prometheus.ExponentialBuckets(bucketStart1ms, bucketFactor2, bucketCount15),
		},
		[]string{"operation"},
	)

	m.dbOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxondb_db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation", "error_type"},
	)

	m.attachOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxondb_attach_operations_total",
			Help: "Total number of ATTACH/DETACH operations per alias",
		},
		[]string{"alias", "operation", "status"},
	)

	m.cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxondb_cache_operations_total",
			Help: "Total number of analytics cache lookups",
		},
		[]string{"operation", "result"}, // result: hit, miss
	)

	m.collectors = []prometheus.Collector{
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.dbOperationErrorsTotal,
		m.attachOperationsTotal,
		m.cacheOperationsTotal,
	}
}

// RecordDbOperation records a completed database operation.
func (m *DatastoreMetrics) RecordDbOperation(operation, status string) {
	if m == nil {
		return
	}
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDbOperationDuration records the duration of a database operation.
func (m *DatastoreMetrics) RecordDbOperationDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.dbOperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordDbOperationError records a failed database operation.
func (m *DatastoreMetrics) RecordDbOperationError(operation, errorType string) {
	if m == nil {
		return
	}
	m.dbOperationErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordAttachOperation records an ATTACH or DETACH against an alias.
func (m *DatastoreMetrics) RecordAttachOperation(alias, operation, status string) {
	if m == nil {
		return
	}
	m.attachOperationsTotal.WithLabelValues(alias, operation, status).Inc()
}

// RecordCacheOperation records an analytics cache hit or miss.
func (m *DatastoreMetrics) RecordCacheOperation(operation, result string) {
	if m == nil {
		return
	}
	m.cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}
