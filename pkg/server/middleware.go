package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"

	"github.com/nimburion/rediswrapper/pkg/observability/logger"
	"github.com/nimburion/rediswrapper/pkg/observability/metrics"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// recovery turns handler panics into 500 responses and logs the stack.
func recovery(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					log.Error("panic recovered",
						"path", req.URL.Path,
						"panic", p,
						"stack", string(debug.Stack()),
					)
					if !rec.written {
						writeJSON(rec, http.StatusInternalServerError, map[string]any{
							"error":   "internal_server_error",
							"message": "an unexpected error occurred",
						})
					}
				}
			}()
			next.ServeHTTP(rec, req)
		})
	}
}

// instrument records request metrics labelled with the route template.
func instrument(reg *metrics.Registry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reg.IncrementInFlight()
			defer reg.DecrementInFlight()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)

			path := req.URL.Path
			if route := mux.CurrentRoute(req); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}
			reg.RecordHTTPMetrics(req.Method, path, rec.status, time.Since(start))
		})
	}
}
