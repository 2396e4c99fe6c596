package store

import (
	"errors"
	"strings"

	"github.com/nimburion/rediswrapper/pkg/config"
	"github.com/nimburion/rediswrapper/pkg/observability/logger"
	"github.com/nimburion/rediswrapper/pkg/observability/metrics"
	"github.com/nimburion/rediswrapper/pkg/probe"
	storeredis "github.com/nimburion/rediswrapper/pkg/store/redis"
)

// NewRedisAdapter builds and connects the Redis adapter described by cfg.
// The probe takes its deadline, key TTL and namespace from cfg.HealthCheck.
// reg may be nil.
func NewRedisAdapter(cfg *config.Config, log logger.Logger, reg *metrics.Registry) (*storeredis.RedisAdapter, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	hc := cfg.HealthCheck
	if strings.TrimSpace(hc.Namespace) == "" {
		return nil, errors.New("healthcheck.namespace is required")
	}

	return storeredis.NewRedisAdapter(storeredis.Config{
		URL:              cfg.Redis.URL,
		ClusterAddrs:     cfg.Redis.ClusterAddrs,
		Password:         cfg.Redis.Password,
		MaxConns:         cfg.Redis.MaxConns,
		OperationTimeout: cfg.Redis.OperationTimeout,
		DialTimeout:      cfg.Redis.DialTimeout,
	}, log,
		storeredis.WithMetrics(reg),
		storeredis.WithProbeOptions(
			probe.WithDeadline(hc.Deadline),
			probe.WithKeyTTL(hc.KeyTTL),
			probe.WithNamespace(hc.Namespace),
		),
	)
}
