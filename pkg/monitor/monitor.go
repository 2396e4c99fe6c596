// Package monitor runs the health check on a fixed interval, logs every
// outcome and keeps the latest one for readiness probes.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nimburion/rediswrapper/pkg/health"
	"github.com/nimburion/rediswrapper/pkg/observability/logger"
	"github.com/nimburion/rediswrapper/pkg/probe"
)

// DefaultInterval is the pause between two checks.
const DefaultInterval = time.Second

// Log messages for check outcomes.
const (
	MessageOK     = "HEALTH CHECK OK"
	MessageFailed = "HEALTH CHECK FAILED"
)

// Result is the outcome of one monitored check.
type Result struct {
	Seq      uint64
	Err      error
	At       time.Time
	Duration time.Duration
}

// Monitor runs checks one after another; a slow check delays the next one
// instead of overlapping it.
type Monitor struct {
	checker  health.Checkable
	logger   logger.Logger
	interval time.Duration
	onResult func(Result)

	mu     sync.RWMutex
	seq    uint64
	latest Result
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the pause between checks.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithResultHandler registers fn to be called after every check.
func WithResultHandler(fn func(Result)) Option {
	return func(m *Monitor) {
		m.onResult = fn
	}
}

// New creates a monitor over checker.
func New(checker health.Checkable, log logger.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		checker:  checker,
		logger:   log,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks immediately and then once per interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("health monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.CheckNow(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// CheckNow runs one check, logs it and stores it as the latest result.
// A check cut short because ctx ended is neither logged as a failure nor
// stored; the returned Result carries the cancellation error and a zero Seq.
func (m *Monitor) CheckNow(ctx context.Context) Result {
	start := time.Now()
	err := m.checker.HealthCheck(ctx)
	if Interrupted(ctx, err) {
		m.logger.WithContext(ctx).Info("health check interrupted", "error", err.Error())
		return Result{Err: err, At: start, Duration: time.Since(start)}
	}

	m.mu.Lock()
	m.seq++
	res := Result{Seq: m.seq, Err: err, At: start, Duration: time.Since(start)}
	m.latest = res
	m.mu.Unlock()

	m.log(ctx, res)
	if m.onResult != nil {
		m.onResult(res)
	}
	return res
}

// Interrupted reports whether err only says that ctx ended.
func Interrupted(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return err != nil && ctxErr != nil && errors.Is(err, ctxErr)
}

// Latest returns the most recent result; ok is false before the first check.
func (m *Monitor) Latest() (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.seq > 0
}

func (m *Monitor) log(ctx context.Context, res Result) {
	log := m.logger.WithContext(ctx)
	if res.Err == nil {
		log.Info(MessageOK, "seq", res.Seq, "duration", res.Duration)
		return
	}

	fields := []any{"seq", res.Seq, "duration", res.Duration, "error", res.Err.Error()}
	if perr, ok := probe.AsError(res.Err); ok {
		fields = append(fields,
			"kind", string(perr.Kind),
			"reason", perr.Message,
			"context", perr.Context,
		)
	}
	log.Error(MessageFailed, fields...)
}

// CachedChecker reports the latest monitored result without running a check.
type CachedChecker struct {
	name    string
	monitor *Monitor
}

// Checker adapts m to health.Checker under name.
func (m *Monitor) Checker(name string) *CachedChecker {
	return &CachedChecker{name: name, monitor: m}
}

// Check returns the latest result; before the first check it is degraded.
func (c *CachedChecker) Check(context.Context) health.CheckResult {
	res, ok := c.monitor.Latest()
	if !ok {
		return health.CheckResult{
			Name:      c.name,
			Status:    health.StatusDegraded,
			Message:   "no health check has completed yet",
			Timestamp: time.Now(),
		}
	}
	result := health.ResultFromError(c.name, res.Err, res.Duration)
	result.Timestamp = res.At
	return result
}

// Name returns the name of the health check
func (c *CachedChecker) Name() string {
	return c.name
}
