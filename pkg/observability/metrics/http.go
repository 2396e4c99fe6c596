package metrics

import (
	"strconv"
	"time"
)

// RecordHTTPMetrics records one management HTTP request.
// path should be the route template, not the raw URL, to keep label
// cardinality bounded.
func (r *Registry) RecordHTTPMetrics(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	r.httpRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
}

// IncrementInFlight increments the in-flight requests gauge.
func (r *Registry) IncrementInFlight() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests gauge.
func (r *Registry) DecrementInFlight() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}
