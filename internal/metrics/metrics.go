// Package metrics provides prometheus collectors for the job dispatcher,
// worker pools, uploads and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsEnqueued      *prometheus.CounterVec
	jobsProcessed     *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	softLimitExceeded *prometheus.CounterVec
	hardLimitExceeded *prometheus.CounterVec
	workersBusy       *prometheus.GaugeVec

	uploadsTotal *prometheus.CounterVec
	uploadBytes  *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on registry
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry returns the registry the collectors were registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) initMetrics() {
	m.jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"queue", "type"},
	)

	m.jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"queue", "type", "status"}, // status: completed, failed
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Time taken to process a job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~55m
		},
		[]string{"queue", "type"},
	)

	m.softLimitExceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_soft_limit_exceeded_total",
			Help: "Total number of jobs that ran past their soft time limit",
		},
		[]string{"queue", "type"},
	)

	m.hardLimitExceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_hard_limit_exceeded_total",
			Help: "Total number of jobs killed at their hard time limit",
		},
		[]string{"queue", "type"},
	)

	m.workersBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workers_busy",
			Help: "Number of worker slots currently holding a job",
		},
		[]string{"queue"},
	)

	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_uploads_total",
			Help: "Total number of media uploads",
		},
		[]string{"media_type", "status"},
	)

	m.uploadBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_upload_size_bytes",
			Help:    "Size of accepted media uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12), // 1KB to ~4GB
		},
		[]string{"media_type"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (m *Metrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsEnqueued,
		m.jobsProcessed,
		m.jobDuration,
		m.softLimitExceeded,
		m.hardLimitExceeded,
		m.workersBusy,
		m.uploadsTotal,
		m.uploadBytes,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordEnqueued counts a job placed on a queue
func (m *Metrics) RecordEnqueued(queue, jobType string) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(queue, jobType).Inc()
}

// RecordProcessed records the outcome and duration of one job run
func (m *Metrics) RecordProcessed(queue, jobType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(queue, jobType, status).Inc()
	m.jobDuration.WithLabelValues(queue, jobType).Observe(elapsed.Seconds())
}

// RecordSoftLimitExceeded counts a job that ran past its soft limit
func (m *Metrics) RecordSoftLimitExceeded(queue, jobType string) {
	if m == nil {
		return
	}
	m.softLimitExceeded.WithLabelValues(queue, jobType).Inc()
}

// RecordHardLimitExceeded counts a job killed at its hard limit
func (m *Metrics) RecordHardLimitExceeded(queue, jobType string) {
	if m == nil {
		return
	}
	m.hardLimitExceeded.WithLabelValues(queue, jobType).Inc()
}

// WorkerBusy adjusts the busy slot gauge by delta
func (m *Metrics) WorkerBusy(queue string, delta float64) {
	if m == nil {
		return
	}
	m.workersBusy.WithLabelValues(queue).Add(delta)
}

// RecordUpload records an upload attempt. size is observed only on success.
func (m *Metrics) RecordUpload(mediaType, status string, size int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(mediaType, status).Inc()
	if status == "success" {
		m.uploadBytes.WithLabelValues(mediaType).Observe(float64(size))
	}
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
