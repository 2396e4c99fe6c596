// Package metrics provides Prometheus metrics for the redis wrapper.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rediswrapper"

// Batch results reported by RecordBatchExec.
const (
	BatchResultOK           = "ok"
	BatchResultCommandError = "command_error"
	BatchResultBatchError   = "batch_error"
)

// Registry manages Prometheus metrics registration and exposure.
// It owns the health check, batch and management HTTP collectors so that
// independent instances never collide. All Record methods are no-ops on a
// nil *Registry.
type Registry struct {
	registry *prometheus.Registry

	healthChecks        *prometheus.CounterVec
	healthCheckDuration *prometheus.HistogramVec
	healthy             prometheus.Gauge
	batchExecs          *prometheus.CounterVec
	batchDuration       prometheus.Histogram

	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestsInFlight prometheus.Gauge
}

// NewRegistry creates a new metrics registry with the wrapper collectors and
// the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		healthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_checks_total",
				Help:      "Total number of redis health checks by result and failure kind",
			},
			[]string{"result", "kind"},
		),
		healthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "health_check_duration_seconds",
				Help:      "Redis health check duration in seconds",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"result"},
		),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "healthy",
			Help:      "1 when the last redis health check succeeded, 0 otherwise",
		}),
		batchExecs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_execs_total",
				Help:      "Total number of MULTI/EXEC batches by result",
			},
			[]string{"result"},
		),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_exec_duration_seconds",
			Help:      "MULTI/EXEC batch round-trip duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		}),
	}

	r.registry.MustRegister(
		r.healthChecks,
		r.healthCheckDuration,
		r.healthy,
		r.batchExecs,
		r.batchDuration,
		r.httpRequestDuration,
		r.httpRequestsTotal,
		r.httpRequestsInFlight,
	)

	// Go runtime metrics (goroutines, memory, GC)
	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return r
}

// RecordHealthCheck records one health check outcome. kind is empty on
// success and names the failure kind otherwise.
func (r *Registry) RecordHealthCheck(kind string, duration time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if kind != "" {
		result = "failed"
	} else {
		kind = "none"
	}
	r.healthChecks.WithLabelValues(result, kind).Inc()
	r.healthCheckDuration.WithLabelValues(result).Observe(duration.Seconds())
	if result == "ok" {
		r.healthy.Set(1)
	} else {
		r.healthy.Set(0)
	}
}

// RecordBatchExec records one batch execution with one of the BatchResult
// constants.
func (r *Registry) RecordBatchExec(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.batchExecs.WithLabelValues(result).Inc()
	r.batchDuration.Observe(duration.Seconds())
}

// Register registers a custom Prometheus collector.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// MustRegister registers custom collectors and panics on error.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.registry.MustRegister(collectors...)
}

// Unregister removes a collector from the registry.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.registry.Unregister(collector)
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the underlying prometheus.Gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
