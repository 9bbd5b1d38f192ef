// Package metrics exposes the engine's prometheus instrumentation. The
// collector owns its registry, so parallel instances (tests, embedded
// runners) never fight over metric registration.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the engine records.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	SectionFailures  *prometheus.CounterVec

	ModelTrainingDuration *prometheus.HistogramVec
	Predictions           *prometheus.CounterVec
	Simulations           *prometheus.CounterVec

	SourceRows      *prometheus.CounterVec
	CacheOperations *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec

	StartTime prometheus.Gauge
}

// NewCollector creates a collector under the given namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}
	c.initializeMetrics()
	c.registerMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	c.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)
	c.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status_code"},
	)

	c.AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "analysis_runs_total",
			Help:      "Total number of analysis runs",
		},
		[]string{"status"},
	)
	c.AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "analysis_run_duration_seconds",
			Help:      "Analysis run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	c.SectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "report_section_failures_total",
			Help:      "Report sections omitted per run, by section key",
		},
		[]string{"section"},
	)

	c.ModelTrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "model_training_duration_seconds",
			Help:      "Model training duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)
	c.Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "predictions_total",
			Help:      "Total number of cost predictions served",
		},
		[]string{"status"},
	)
	c.Simulations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "simulations_total",
			Help:      "Total number of delay-impact simulations served",
		},
		[]string{"kind", "status"},
	)

	c.SourceRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "source_rows_total",
			Help:      "Incident rows seen at load time, by outcome",
		},
		[]string{"source", "outcome"},
	)
	c.CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "cache_operations_total",
			Help:      "Report cache operations",
		},
		[]string{"operation", "result"},
	)
	c.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"error_type", "component"},
	)

	c.StartTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "start_time_seconds",
			Help:      "Service start time in Unix seconds",
		},
	)
}

func (c *Collector) registerMetrics() {
	c.registry.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.AnalysisRuns,
		c.AnalysisDuration,
		c.SectionFailures,
		c.ModelTrainingDuration,
		c.Predictions,
		c.Simulations,
		c.SourceRows,
		c.CacheOperations,
		c.ErrorsTotal,
		c.StartTime,
	)
	c.StartTime.SetToCurrentTime()
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	c.RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.RequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordAnalysisRun records one completed or failed analysis run.
func (c *Collector) RecordAnalysisRun(status string, duration time.Duration) {
	c.AnalysisRuns.WithLabelValues(status).Inc()
	if status == "success" {
		c.AnalysisDuration.Observe(duration.Seconds())
	}
}

// RecordSectionFailure records a report section omitted from a run.
func (c *Collector) RecordSectionFailure(section string) {
	c.SectionFailures.WithLabelValues(section).Inc()
}

// RecordModelTraining records a model training pass.
func (c *Collector) RecordModelTraining(model string, duration time.Duration) {
	c.ModelTrainingDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordPrediction records a served cost prediction.
func (c *Collector) RecordPrediction(status string) {
	c.Predictions.WithLabelValues(status).Inc()
}

// RecordSimulation records a served delay-impact simulation.
func (c *Collector) RecordSimulation(kind, status string) {
	c.Simulations.WithLabelValues(kind, status).Inc()
}

// RecordSourceRows records rows seen while loading a register.
func (c *Collector) RecordSourceRows(source, outcome string, count int) {
	c.SourceRows.WithLabelValues(source, outcome).Add(float64(count))
}

// RecordCacheOperation records a report cache operation.
func (c *Collector) RecordCacheOperation(operation, result string) {
	c.CacheOperations.WithLabelValues(operation, result).Inc()
}

// RecordError records an error by type and component.
func (c *Collector) RecordError(errorType, component string) {
	c.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving this collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
