// Package metrics provides Prometheus metrics for report ingestion.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by the recording methods.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusFallback = "fallback"
)

// IngestMetrics contains Prometheus metrics for the ingestion server.
// A nil *IngestMetrics is valid and records nothing.
type IngestMetrics struct {
	registry *prometheus.Registry

	reportOperationsTotal   *prometheus.CounterVec
	reportOperationDuration *prometheus.HistogramVec

	photosStoredTotal  *prometheus.CounterVec
	sheetRowsTotal     *prometheus.CounterVec
	uploadSlotsTotal   *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// NewIngestMetrics creates and registers ingestion metrics.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry is the registry the metrics were registered with.
func (m *IngestMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *IngestMetrics) initMetrics() {
	m.reportOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_operations_total",
			Help: "Total number of report store operations",
		},
		[]string{"operation", "status"}, // operation: create, update, create_draft, update_draft
	)

	m.reportOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_operation_duration_seconds",
			Help:    "Time taken by report store operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation"},
	)

	m.photosStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_photos_stored_total",
			Help: "Total number of photo references attached to reports",
		},
		[]string{"source"}, // source: decoded, reference
	)

	m.sheetRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheet_rows_appended_total",
			Help: "Total number of spreadsheet rows appended",
		},
		[]string{"status"}, // status: success, fallback, error
	)

	m.uploadSlotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_slots_issued_total",
			Help: "Total number of presigned slot requests",
		},
		[]string{"kind", "status"}, // kind: upload, download
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	m.httpRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (m *IngestMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.reportOperationsTotal,
		m.reportOperationDuration,
		m.photosStoredTotal,
		m.sheetRowsTotal,
		m.uploadSlotsTotal,
		m.httpRequestsTotal,
		m.httpRequestLatency,
	}
}

// Describe implements the Collector interface
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordReportOperation records one report store operation and its duration.
func (m *IngestMetrics) RecordReportOperation(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.reportOperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
	m.reportOperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordPhotos records n photo references attached from source.
func (m *IngestMetrics) RecordPhotos(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.photosStoredTotal.WithLabelValues(source).Add(float64(n))
}

// RecordSheetRow records the outcome of one spreadsheet row append.
func (m *IngestMetrics) RecordSheetRow(status string) {
	if m == nil {
		return
	}
	m.sheetRowsTotal.WithLabelValues(status).Inc()
}

// RecordUploadSlot records a presign request of the given kind.
func (m *IngestMetrics) RecordUploadSlot(kind string, err error) {
	if m == nil {
		return
	}
	m.uploadSlotsTotal.WithLabelValues(kind, statusOf(err)).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *IngestMetrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpRequestLatency.WithLabelValues(method, path).Observe(seconds)
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
