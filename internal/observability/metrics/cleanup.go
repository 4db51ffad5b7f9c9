package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CleanupMetrics contains Prometheus metrics for regional cleanup runs.
type CleanupMetrics struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	detectionsDeleted   prometheus.Counter
	audioFilesDeleted   prometheus.Counter
	audioDeletionErrors prometheus.Counter
	runDuration         *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewCleanupMetrics creates and registers new cleanup metrics.
func NewCleanupMetrics(registry *prometheus.Registry) (*CleanupMetrics, error) {
	m := &CleanupMetrics{registry: registry}
	m.initMetrics()
	for _, c := range m.collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *CleanupMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxondb_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		},
		[]string{"mode", "status"}, // mode: preview, delete
	)

	m.detectionsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxondb_cleanup_detections_deleted_total",
		Help: "Total number of detections deleted by cleanup runs",
	})

	m.audioFilesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxondb_cleanup_audio_files_deleted_total",
		Help: "Total number of audio files deleted by cleanup runs",
	})

	m.audioDeletionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxondb_cleanup_audio_deletion_errors_total",
		Help: "Total number of audio file deletion errors",
	})

	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taxondb_cleanup_run_duration_seconds",
			Help:    "Time taken for cleanup runs",
			Buckets: prometheus.ExponentialBuckets(bucketStart1ms, bucketFactor2, bucketCount15),
		},
		[]string{"mode"},
	)

	m.collectors = []prometheus.Collector{
		m.runsTotal,
		m.detectionsDeleted,
		m.audioFilesDeleted,
		m.audioDeletionErrors,
		m.runDuration,
	}
}

// RecordRun records a completed cleanup run.
func (m *CleanupMetrics) RecordRun(mode, status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(mode, status).Inc()
	m.runDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordDeletions records row and file deletion counts from a run.
func (m *CleanupMetrics) RecordDeletions(detections, audioFiles, audioErrors int) {
	if m == nil {
		return
	}
	m.detectionsDeleted.Add(float64(detections))
	m.audioFilesDeleted.Add(float64(audioFiles))
	m.audioDeletionErrors.Add(float64(audioErrors))
}
