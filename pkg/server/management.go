package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/nimburion/rediswrapper/pkg/config"
	"github.com/nimburion/rediswrapper/pkg/health"
	"github.com/nimburion/rediswrapper/pkg/observability/logger"
	"github.com/nimburion/rediswrapper/pkg/observability/metrics"
)

const (
	headerHealthSource = "X-Health-Source"
	sourceLive         = "live"
	sourceCached       = "cached"
)

// ManagementServer serves /health, /ready and /metrics.
type ManagementServer struct {
	*Server
	router          *mux.Router
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	readyLimiter    *rate.Limiter
	cached          health.Checker
}

// ManagementOption configures a ManagementServer.
type ManagementOption func(*ManagementServer)

// WithReadyLimit bounds the live checks run by /ready to perSecond with the
// given burst. Requests above the limit are answered from cached, or with
// 429 when cached is nil.
func WithReadyLimit(perSecond float64, burst int, cached health.Checker) ManagementOption {
	return func(s *ManagementServer) {
		if perSecond > 0 && burst > 0 {
			s.readyLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
		s.cached = cached
	}
}

// NewManagementServer creates the management server and registers its
// endpoints:
//   - /health: liveness, always 200
//   - /ready: readiness, 503 unless every registered check is healthy
//   - /metrics: Prometheus exposition
func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
	opts ...ManagementOption,
) *ManagementServer {
	r := mux.NewRouter()
	r.Use(recovery(log), instrument(metricsRegistry))

	s := &ManagementServer{
		Server: NewServer(Config{
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, r, log),
		router:          r,
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metricsRegistry.Handler()).Methods(http.MethodGet)
	return s
}

// Router returns the underlying router for registering extra routes.
func (s *ManagementServer) Router() *mux.Router {
	return s.router
}

func (s *ManagementServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": health.StatusHealthy,
	})
}

func (s *ManagementServer) handleReady(w http.ResponseWriter, req *http.Request) {
	var result health.AggregatedResult
	switch {
	case s.readyLimiter == nil || s.readyLimiter.Allow():
		w.Header().Set(headerHealthSource, sourceLive)
		result = s.healthRegistry.Check(req.Context())
	case s.cached != nil:
		w.Header().Set(headerHealthSource, sourceCached)
		check := s.cached.Check(req.Context())
		result = health.AggregatedResult{
			Status:    check.Status,
			Checks:    []health.CheckResult{check},
			Timestamp: time.Now(),
		}
	default:
		reservation := s.readyLimiter.Reserve()
		retryAfter := reservation.Delay()
		reservation.Cancel()
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "too_many_requests",
		})
		return
	}

	status := http.StatusOK
	if !result.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
