package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Config holds metrics configuration.
type Config struct {
	EnableOperationLabel bool
}

// Metrics holds all application metrics.
type Metrics struct {
	config                 Config
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	httpRequestBytes        *prometheus.CounterVec
	storeOperationsTotal    *prometheus.CounterVec
	storeOperationDuration  *prometheus.HistogramVec
	storeOperationErrors    *prometheus.CounterVec
	pipelineOperations      *prometheus.CounterVec
	pipelineDuration        *prometheus.HistogramVec
	pipelineErrors          *prometheus.CounterVec
	pipelineBytes           *prometheus.CounterVec
	recencyOperations       *prometheus.CounterVec
	recencyErrors           *prometheus.CounterVec
	bufferPoolHits          *prometheus.CounterVec
	bufferPoolMisses        *prometheus.CounterVec
	schedulerQueueDepth     prometheus.Gauge
	schedulerRejected       prometheus.Counter
	activeConnections       prometheus.Gauge
	goroutines              prometheus.Gauge
	memoryAllocBytes        prometheus.Gauge
	memorySysBytes          prometheus.Gauge
}

// NewMetrics creates a new metrics instance with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableOperationLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry.
// This is useful for testing to avoid metric registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableOperationLabel: true})
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in HTTP requests",
			},
			[]string{"method", "path"},
		),
		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of metadata store operations",
			},
			[]string{"operation"},
		),
		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Metadata store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operation_errors_total",
				Help: "Total number of metadata store operation errors",
			},
			[]string{"operation", "error_type"},
		),
		pipelineOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_operations_total",
				Help: "Total number of compress/decompress/search operations",
			},
			[]string{"operation"}, // "compress", "decompress", "search"
		),
		pipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_duration_seconds",
				Help:    "Compress/decompress/search operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		pipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_errors_total",
				Help: "Total number of pipeline operation errors",
			},
			[]string{"operation", "error_type"},
		),
		pipelineBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_bytes_total",
				Help: "Total bytes processed by the pipeline",
			},
			[]string{"operation"},
		),
		recencyOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recency_operations_total",
				Help: "Total number of recency queue operations",
			},
			[]string{"operation"},
		),
		recencyErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recency_errors_total",
				Help: "Total number of recency queue errors",
			},
			[]string{"operation"},
		),
		bufferPoolHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_pool_hits_total",
				Help: "Total number of buffer pool hits",
			},
			[]string{"size_class"},
		),
		bufferPoolMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_pool_misses_total",
				Help: "Total number of buffer pool misses",
			},
			[]string{"size_class"},
		),
		schedulerQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_queue_depth",
				Help: "Current number of jobs queued in the async scheduler",
			},
		),
		schedulerRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_rejected_total",
				Help: "Total number of jobs rejected because the async scheduler queue was full",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	label := sanitizePathLabel(path)
	labels := prometheus.Labels{"method": method, "path": label, "status": http.StatusText(status)}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.httpRequestsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.httpRequestsTotal.With(labels).Inc()
		}

		if observer, ok := m.httpRequestDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.httpRequestDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(duration.Seconds())
	}

	m.httpRequestBytes.WithLabelValues(method, label).Add(float64(bytes))
}

// sanitizePathLabel reduces high-cardinality paths to stable labels.
// Examples:
// "/metrics" => "/metrics"
// "/api/v1/snippets/42" => "/api/*"
func sanitizePathLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) <= 1 {
		return "/" + segs[0]
	}
	return "/" + segs[0] + "/*"
}

// RecordStoreOperation records a metadata store operation metric.
func (m *Metrics) RecordStoreOperation(ctx context.Context, operation string, duration time.Duration) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.storeOperationsTotal.WithLabelValues(operation).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.storeOperationsTotal.WithLabelValues(operation).Inc()
		}

		if observer, ok := m.storeOperationDuration.WithLabelValues(operation).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
		}
	} else {
		m.storeOperationsTotal.WithLabelValues(operation).Inc()
		m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordStoreError records a metadata store operation error.
func (m *Metrics) RecordStoreError(ctx context.Context, operation, errorType string) {
	m.storeOperationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordPipelineOperation records a compress/decompress/search operation metric.
func (m *Metrics) RecordPipelineOperation(ctx context.Context, operation string, duration time.Duration, bytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.pipelineOperations.WithLabelValues(operation).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.pipelineOperations.WithLabelValues(operation).Inc()
		}

		if observer, ok := m.pipelineDuration.WithLabelValues(operation).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.pipelineDuration.WithLabelValues(operation).Observe(duration.Seconds())
		}
	} else {
		m.pipelineOperations.WithLabelValues(operation).Inc()
		m.pipelineDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	m.pipelineBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordPipelineError records a pipeline operation error.
func (m *Metrics) RecordPipelineError(ctx context.Context, operation, errorType string) {
	m.pipelineErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordRecencyOperation records a recency queue operation.
func (m *Metrics) RecordRecencyOperation(operation string) {
	m.recencyOperations.WithLabelValues(operation).Inc()
}

// RecordRecencyError records a recency queue error.
func (m *Metrics) RecordRecencyError(operation string) {
	m.recencyErrors.WithLabelValues(operation).Inc()
}

// RecordBufferPoolHit records a buffer pool hit.
func (m *Metrics) RecordBufferPoolHit(sizeClass string) {
	m.bufferPoolHits.WithLabelValues(sizeClass).Inc()
}

// RecordBufferPoolMiss records a buffer pool miss.
func (m *Metrics) RecordBufferPoolMiss(sizeClass string) {
	m.bufferPoolMisses.WithLabelValues(sizeClass).Inc()
}

// SetSchedulerQueueDepth sets the current async scheduler queue depth.
func (m *Metrics) SetSchedulerQueueDepth(depth int) {
	m.schedulerQueueDepth.Set(float64(depth))
}

// RecordSchedulerRejected records a job rejected by the async scheduler.
func (m *Metrics) RecordSchedulerRejected() {
	m.schedulerRejected.Inc()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts trace ID from context and returns prometheus Labels for exemplar.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
