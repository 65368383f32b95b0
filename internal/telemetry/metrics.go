// Package telemetry provides observability for the TuskLang runtime:
// structured logging, Prometheus metrics and secret redaction.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the runtime's Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	parsesTotal       *prometheus.CounterVec
	parseDuration     prometheus.Histogram
	operatorEvals     *prometheus.CounterVec
	crossFileLoads    *prometheus.CounterVec
	cacheEntries      prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	customMetricValue *prometheus.GaugeVec
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		parsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsk_parses_total",
			Help: "Documents parsed, by status.",
		}, []string{"status"}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsk_parse_duration_seconds",
			Help:    "Time to parse and evaluate a document.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		operatorEvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsk_operator_evaluations_total",
			Help: "Operator dispatches, by operator and status.",
		}, []string{"operator", "status"}),
		crossFileLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsk_crossfile_loads_total",
			Help: "Cross-file resolutions, by outcome (hit, load, error).",
		}, []string{"outcome"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsk_crossfile_cache_entries",
			Help: "Entries in the cross-file cache.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsk_http_requests_total",
			Help: "HTTP requests served, by path and code.",
		}, []string{"path", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tsk_http_request_duration_seconds",
			Help:    "HTTP request latency, by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		customMetricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsk_custom_metric",
			Help: "Values recorded through @metrics.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.parsesTotal,
		m.parseDuration,
		m.operatorEvals,
		m.crossFileLoads,
		m.cacheEntries,
		m.httpRequests,
		m.httpDuration,
		m.customMetricValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordParse records one parse with its duration.
func (m *Metrics) RecordParse(ok bool, d time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.parsesTotal.WithLabelValues(status).Inc()
	m.parseDuration.Observe(d.Seconds())
}

// RecordOperator records one operator dispatch.
func (m *Metrics) RecordOperator(name string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.operatorEvals.WithLabelValues(name, status).Inc()
}

// RecordCrossFile records a cross-file resolution outcome.
func (m *Metrics) RecordCrossFile(outcome string) {
	m.crossFileLoads.WithLabelValues(outcome).Inc()
}

// SetCacheEntries sets the cross-file cache gauge.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(path, code string, d time.Duration) {
	m.httpRequests.WithLabelValues(path, code).Inc()
	m.httpDuration.WithLabelValues(path).Observe(d.Seconds())
}

// SetCustom exports an @metrics value on the Prometheus surface.
func (m *Metrics) SetCustom(name string, value float64) {
	m.customMetricValue.WithLabelValues(name).Set(value)
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
