package health

import (
	"context"
	"time"

	"github.com/nimburion/rediswrapper/pkg/probe"
)

// Checkable is implemented by components that run their own health check
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// ProbeChecker reports the outcome of a write/verify health check. When the
// check fails with a *probe.Error its kind, stage and token are copied into
// the result metadata.
type ProbeChecker struct {
	name   string
	target Checkable
}

// NewProbeChecker creates a checker named name over target.
func NewProbeChecker(name string, target Checkable) *ProbeChecker {
	return &ProbeChecker{
		name:   name,
		target: target,
	}
}

// Check runs the health check once.
func (c *ProbeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.target.HealthCheck(ctx)
	return ResultFromError(c.name, err, time.Since(start))
}

// Name returns the name of the health check
func (c *ProbeChecker) Name() string {
	return c.name
}

// ResultFromError builds a CheckResult from a health check error.
func ResultFromError(name string, err error, duration time.Duration) CheckResult {
	result := CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
	if err == nil {
		return result
	}

	result.Status = StatusUnhealthy
	result.Message = ""
	result.Error = err.Error()
	if perr, ok := probe.AsError(err); ok {
		result.Message = perr.Message
		result.Metadata = map[string]any{
			"kind":    string(perr.Kind),
			"stage":   perr.Context.Stage,
			"token":   perr.Context.Token,
			"timeout": perr.Context.Timeout.String(),
			"target":  perr.Context.Target,
		}
		if len(perr.Context.Reply) > 0 {
			result.Metadata["reply"] = perr.Context.Reply
		}
	}
	return result
}

// PingChecker always reports healthy. It backs liveness endpoints.
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{name: name}
}

// Check always returns healthy status
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "Service is alive",
		Timestamp: time.Now(),
	}
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}
