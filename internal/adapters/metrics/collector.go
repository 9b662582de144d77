// Package metrics exports service metrics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "spatialquery"

var (
	queryBuckets   = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	storageBuckets = []float64{.005, .025, .1, .5, 1, 5, 15, 60, 300}
)

// Collector implements output.MetricsCollector on its own registry.
type Collector struct {
	registry *prometheus.Registry

	queries           *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	invalidFeatures   *prometheus.CounterVec
	predicateFailures prometheus.Counter
	queryProgress     *prometheus.GaugeVec

	packagesLoaded prometheus.Gauge
	packagesReady  prometheus.Gauge

	storageOps      *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers the service metrics on reg. A nil reg gets a fresh
// registry that also carries the Go runtime and process collectors.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	f := promauto.With(reg)
	opts := func(subsystem, name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
	}
	histogram := func(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}
	}

	return &Collector{
		registry: reg,

		queries: f.NewCounterVec(prometheus.CounterOpts(
			opts("query", "total", "Relation queries by relation and outcome.")),
			[]string{"relation", "status"}),
		queryDuration: f.NewHistogramVec(
			histogram("query", "duration_seconds", "Relation query latency.", queryBuckets),
			[]string{"relation"}),
		invalidFeatures: f.NewCounterVec(prometheus.CounterOpts(
			opts("query", "invalid_features_total", "Features skipped for a missing or empty geometry.")),
			[]string{"role"}),
		predicateFailures: f.NewCounter(prometheus.CounterOpts(
			opts("query", "predicate_failures_total", "Feature pairs the geometry engine could not evaluate."))),
		queryProgress: f.NewGaugeVec(prometheus.GaugeOpts(
			opts("query", "progress_ratio", "Visited fraction of the running query phase.")),
			[]string{"phase"}),

		packagesLoaded: f.NewGauge(prometheus.GaugeOpts(
			opts("registry", "packages", "Registered GeoPackages."))),
		packagesReady: f.NewGauge(prometheus.GaugeOpts(
			opts("registry", "packages_ready", "GeoPackages ready for queries."))),

		storageOps: f.NewCounterVec(prometheus.CounterOpts(
			opts("storage", "operations_total", "Object storage calls by operation and outcome.")),
			[]string{"operation", "status"}),
		storageDuration: f.NewHistogramVec(
			histogram("storage", "duration_seconds", "Object storage call latency.", storageBuckets),
			[]string{"operation"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts(
			opts("http", "requests_total", "HTTP requests by route and status class.")),
			[]string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(
			histogram("http", "request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets),
			[]string{"method", "route"}),
	}
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (c *Collector) IncQueryCount(relation string, success bool) {
	c.queries.WithLabelValues(relation, outcome(success)).Inc()
}

func (c *Collector) ObserveQueryDuration(relation string, d time.Duration) {
	c.queryDuration.WithLabelValues(relation).Observe(d.Seconds())
}

func (c *Collector) AddInvalidFeatures(role string, count int) {
	if count > 0 {
		c.invalidFeatures.WithLabelValues(role).Add(float64(count))
	}
}

func (c *Collector) AddPredicateFailures(count int) {
	if count > 0 {
		c.predicateFailures.Add(float64(count))
	}
}

func (c *Collector) SetPackagesLoaded(count int) {
	c.packagesLoaded.Set(float64(count))
}

func (c *Collector) SetPackagesReady(count int) {
	c.packagesReady.Set(float64(count))
}

func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOps.WithLabelValues(operation, outcome(success)).Inc()
}

func (c *Collector) ObserveStorageDuration(operation string, d time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(d.Seconds())
}
