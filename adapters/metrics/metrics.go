// Package metrics provides Prometheus metrics collection for Pulse.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/pulse/ports"
)

const namespace = "pulse"

// Collector holds all Prometheus metrics for Pulse. It implements
// ports.Observer so services can report without importing Prometheus.
type Collector struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	AuthFailures     *prometheus.CounterVec

	// Ingestion metrics
	EventsIngested  prometheus.Counter
	EventsRejectedN *prometheus.CounterVec
	FlushesTotal    *prometheus.CounterVec
	FlushDuration   prometheus.Histogram
	FlushedEvents   prometheus.Counter

	// Dashboard metrics
	CacheLookups *prometheus.CounterVec

	// Export metrics
	ExportsTotal *prometheus.CounterVec
	ExportBytes  *prometheus.HistogramVec

	// Job metrics
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of project key authentication failures",
			},
			[]string{"reason"},
		),

		EventsIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_accepted_total",
				Help:      "Total number of events accepted into the buffers",
			},
		),
		EventsRejectedN: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_rejected_total",
				Help:      "Total number of events refused at ingestion",
			},
			[]string{"reason"},
		),
		FlushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buffer_flushes_total",
				Help:      "Total number of buffer flushes",
			},
			[]string{"result"},
		),
		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "buffer_flush_duration_seconds",
				Help:      "Buffer flush duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		FlushedEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_flushed_total",
				Help:      "Total number of events written to storage",
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_cache_lookups_total",
				Help:      "Dashboard cache lookups by metric and result",
			},
			[]string{"metric", "result"},
		),

		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Finished export jobs by format and status",
			},
			[]string{"format", "status"},
		),
		ExportBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_size_bytes",
				Help:      "Size of generated export files",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"format"},
		),

		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Scheduled job duration in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"job"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// RegisterBufferGauge exposes the number of buffered events.
func RegisterBufferGauge(reg prometheus.Registerer, size func() int) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_events",
			Help:      "Events waiting in ingestion buffers",
		},
		func() float64 { return float64(size()) },
	)
}

// EventsAccepted implements ports.Observer.
func (c *Collector) EventsAccepted(n int) {
	c.EventsIngested.Add(float64(n))
}

// EventsRejected implements ports.Observer.
func (c *Collector) EventsRejected(reason string, n int) {
	c.EventsRejectedN.WithLabelValues(reason).Add(float64(n))
}

// Flushed implements ports.Observer.
func (c *Collector) Flushed(_ string, events int, d time.Duration, err error) {
	c.FlushDuration.Observe(d.Seconds())
	if err != nil {
		c.FlushesTotal.WithLabelValues("error").Inc()
		return
	}
	c.FlushesTotal.WithLabelValues("ok").Inc()
	c.FlushedEvents.Add(float64(events))
}

// CacheLookup implements ports.Observer.
func (c *Collector) CacheLookup(metric, result string) {
	c.CacheLookups.WithLabelValues(metric, result).Inc()
}

// ExportFinished implements ports.Observer.
func (c *Collector) ExportFinished(format, status string, size int64) {
	c.ExportsTotal.WithLabelValues(format, status).Inc()
	if size > 0 {
		c.ExportBytes.WithLabelValues(format).Observe(float64(size))
	}
}

// JobFinished implements ports.Observer.
func (c *Collector) JobFinished(job string, d time.Duration, err error) {
	c.JobDuration.WithLabelValues(job).Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.JobRuns.WithLabelValues(job, result).Inc()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// NormalizePath reduces cardinality for requests that matched no route.
func NormalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

var _ ports.Observer = (*Collector)(nil)
