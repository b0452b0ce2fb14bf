// Package metrics provides Prometheus metrics for the tagcaption service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBucketsMS spans sub-millisecond SQLite reads up to ten
// second sweeps. Every latency metric here is in milliseconds.
var defaultLatencyBucketsMS = []float64{ //nolint:gochecknoglobals // read-only defaults
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000,
}

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets   []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Service operations
	operations *prometheus.CounterVec

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryErrors       *prometheus.CounterVec

	// Maintenance sweep
	sweepTicks       prometheus.Counter
	sweepErrors      prometheus.Counter
	sweepRunsDeleted prometheus.Counter
	sweepDuration    prometheus.Histogram
	runsRemaining    prometheus.Gauge
	usersRegistered  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tagcaption",
		subsystem:        "core",
		latencyBuckets:   defaultLatencyBucketsMS,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.operations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("operations_total"),
		Help:        "Service operations by name and outcome kind",
		ConstLabels: labels,
	}, []string{"operation", "outcome"})

	m.repositoryQueryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("repository_query_latency_milliseconds"),
		Help:        "Latency of repository statements in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	}, []string{"query"})

	m.repositoryErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("repository_errors_total"),
		Help:        "Repository statements that failed in the storage engine",
		ConstLabels: labels,
	}, []string{"query"})

	m.sweepTicks = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sweep_ticks_total"),
		Help:        "Maintenance sweeps started",
		ConstLabels: labels,
	})

	m.sweepErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sweep_errors_total"),
		Help:        "Maintenance sweep steps that failed",
		ConstLabels: labels,
	})

	m.sweepRunsDeleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sweep_runs_deleted_total"),
		Help:        "Stale pending or errored runs removed by the sweep",
		ConstLabels: labels,
	})

	m.sweepDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sweep_duration_milliseconds"),
		Help:        "Duration of a maintenance sweep in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.runsRemaining = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("runs_remaining"),
		Help:        "Runs left in storage after the last sweep",
		ConstLabels: labels,
	})

	m.usersRegistered = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("users_registered"),
		Help:        "Registered users seen by the last sweep",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Errors by component and error type",
		ConstLabels: labels,
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "HTTP errors by endpoint, method and error type",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "error_type"})
}

// RecordOperation counts one service operation with its outcome kind.
func (m *Manager) RecordOperation(operation, outcome string) {
	if m.enabled {
		m.operations.WithLabelValues(operation, outcome).Inc()
	}
}

// RecordRepositoryQuery observes a repository statement and counts failures.
func (m *Manager) RecordRepositoryQuery(query string, latency time.Duration, err error) {
	if !m.enabled {
		return
	}
	m.repositoryQueryLatency.WithLabelValues(query).Observe(milliseconds(latency))
	if err != nil {
		m.repositoryErrors.WithLabelValues(query).Inc()
	}
}

// RecordSweep records the outcome of one maintenance tick.
func (m *Manager) RecordSweep(deleted int64, duration time.Duration, failed bool) {
	if !m.enabled {
		return
	}
	m.sweepTicks.Inc()
	if failed {
		m.sweepErrors.Inc()
	}
	if deleted > 0 {
		m.sweepRunsDeleted.Add(float64(deleted))
	}
	m.sweepDuration.Observe(milliseconds(duration))
}

// UpdateSnapshot sets the gauges derived from the sweep snapshot.
func (m *Manager) UpdateSnapshot(users, runs int) {
	if m.enabled {
		m.usersRegistered.Set(float64(users))
		m.runsRemaining.Set(float64(runs))
	}
}

// RecordHTTPRequest counts and times one HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent counts an error raised by a component.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if m.enabled {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint counts an HTTP error response.
func (m *Manager) RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m.enabled {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// Package-level helpers delegating to the global manager.

// RecordOperation counts one service operation.
func RecordOperation(operation, outcome string) { globalManager.RecordOperation(operation, outcome) }

// RecordRepositoryQuery observes one repository statement.
func RecordRepositoryQuery(query string, latency time.Duration, err error) {
	globalManager.RecordRepositoryQuery(query, latency, err)
}

// RecordSweep records one maintenance tick.
func RecordSweep(deleted int64, duration time.Duration, failed bool) {
	globalManager.RecordSweep(deleted, duration, failed)
}

// UpdateSnapshot sets the sweep snapshot gauges.
func UpdateSnapshot(users, runs int) { globalManager.UpdateSnapshot(users, runs) }

// RecordHTTPRequest counts and times one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordErrorByComponent counts a component error.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.RecordErrorByEndpoint(endpoint, method, errorType)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// milliseconds converts d to fractional milliseconds.
func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
