// internal/observe/metrics.go

package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the pipeline's metrics sink.
type Metrics struct {
	IngestTotal    *prometheus.CounterVec
	AnomaliesTotal *prometheus.CounterVec
	ProcessingTime prometheus.Histogram
	StorageTime    prometheus.Histogram
	RecordsCleaned prometheus.Counter
	DedupCacheHits prometheus.Counter
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendwire_ingest_total",
			Help: "Ingest attempts by terminal status.",
		}, []string{"status"}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendwire_anomalies_total",
			Help: "Anomaly flags raised, by type and severity.",
		}, []string{"type", "severity"}),
		ProcessingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendwire_ingest_processing_seconds",
			Help:    "End-to-end ingest processing time.",
			Buckets: prometheus.DefBuckets,
		}),
		StorageTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendwire_storage_seconds",
			Help:    "Time spent in the storage transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		RecordsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendwire_records_cleaned_total",
			Help: "Records removed by retention cleanup.",
		}),
		DedupCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendwire_dedup_cache_hits_total",
			Help: "Duplicates caught by the in-process hash cache.",
		}),
	}

	reg.MustRegister(
		m.IngestTotal,
		m.AnomaliesTotal,
		m.ProcessingTime,
		m.StorageTime,
		m.RecordsCleaned,
		m.DedupCacheHits,
	)

	return m
}
