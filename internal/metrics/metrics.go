package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	imagesUploaded  prometheus.Counter
	imagesFailed    prometheus.Counter
	retryRounds     prometheus.Counter
	ingestsTotal    *prometheus.CounterVec
	ingestDurations prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		imagesUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataset_images_uploaded_total",
			Help: "Total number of image objects confirmed by the object store",
		}),
		imagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataset_images_failed_total",
			Help: "Total number of image uploads that failed after all retries",
		}),
		retryRounds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dataset_upload_retry_rounds_total",
			Help: "Total number of retry rounds performed by the batch uploader",
		}),
		ingestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dataset_ingests_total",
			Help: "Total number of dataset ingestions by final status",
		}, []string{"status"}),
		ingestDurations: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dataset_ingest_duration_seconds",
			Help:    "Wall-clock duration of full dataset ingestions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

// AddUploaded records n confirmed image uploads. Safe on a nil receiver so
// tests can leave metrics unset.
func (m *Metrics) AddUploaded(n int) {
	if m == nil {
		return
	}
	m.imagesUploaded.Add(float64(n))
}

// AddFailed records n permanently failed image uploads.
func (m *Metrics) AddFailed(n int) {
	if m == nil {
		return
	}
	m.imagesFailed.Add(float64(n))
}

// AddRetryRounds records n retry rounds.
func (m *Metrics) AddRetryRounds(n int) {
	if m == nil {
		return
	}
	m.retryRounds.Add(float64(n))
}

// ObserveIngest records one finished ingestion.
func (m *Metrics) ObserveIngest(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestsTotal.WithLabelValues(status).Inc()
	m.ingestDurations.Observe(d.Seconds())
}
