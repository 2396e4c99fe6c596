// Package redis connects the batch and probe packages to Redis through
// go-redis, in standalone or cluster mode.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/rediswrapper/pkg/batch"
	"github.com/nimburion/rediswrapper/pkg/observability/logger"
	"github.com/nimburion/rediswrapper/pkg/observability/metrics"
	"github.com/nimburion/rediswrapper/pkg/observability/tracing"
	"github.com/nimburion/rediswrapper/pkg/probe"
)

// Addressing modes reported by Describe.
const (
	ModeStandalone = "standalone"
	ModeCluster    = "cluster"
)

const (
	defaultDialTimeout = 5 * time.Second
	connectTimeout     = 5 * time.Second
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// RedisAdapter provides Redis connectivity, atomic batches and the
// write/verify health check on top of one go-redis client.
type RedisAdapter struct {
	client  redis.UniversalClient
	logger  logger.Logger
	config  Config
	metrics *metrics.Registry
	batches *batch.Adapter
	prober  *probe.Prober
}

// Config holds Redis connection configuration. Exactly one of URL and
// ClusterAddrs must be set.
type Config struct {
	URL              string
	ClusterAddrs     []string
	Password         string
	MaxConns         int
	OperationTimeout time.Duration
	DialTimeout      time.Duration
}

// Validate reports whether the configuration selects exactly one mode.
func (c Config) Validate() error {
	switch {
	case c.URL == "" && len(c.ClusterAddrs) == 0:
		return errors.New("redis URL or cluster addresses are required")
	case c.URL != "" && len(c.ClusterAddrs) > 0:
		return errors.New("redis URL and cluster addresses are mutually exclusive")
	}
	return nil
}

// Option configures a RedisAdapter.
type Option func(*adapterOptions)

type adapterOptions struct {
	metrics *metrics.Registry
	probe   []probe.Option
}

// WithMetrics records batch and health check metrics into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *adapterOptions) {
		o.metrics = reg
	}
}

// WithProbeOptions configures the health check prober.
func WithProbeOptions(opts ...probe.Option) Option {
	return func(o *adapterOptions) {
		o.probe = append(o.probe, opts...)
	}
}

// NewRedisAdapter creates a client for cfg, verifies it with a PING and
// returns the adapter.
func NewRedisAdapter(cfg Config, log logger.Logger, opts ...Option) (*RedisAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	var client redis.UniversalClient
	if cfg.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		if cfg.Password != "" {
			redisOpts.Password = cfg.Password
		}
		redisOpts.PoolSize = cfg.MaxConns
		redisOpts.DialTimeout = dialTimeout
		redisOpts.ReadTimeout = cfg.OperationTimeout
		redisOpts.WriteTimeout = cfg.OperationTimeout
		client = redis.NewClient(redisOpts)
	} else {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			PoolSize:     cfg.MaxConns,
			DialTimeout:  dialTimeout,
			ReadTimeout:  cfg.OperationTimeout,
			WriteTimeout: cfg.OperationTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	a := NewAdapterFromClient(client, log, opts...)
	a.config = cfg

	target := a.Describe()
	log.Info("Redis connection established",
		"mode", target.Mode,
		"max_conns", cfg.MaxConns,
		"operation_timeout", cfg.OperationTimeout,
	)
	return a, nil
}

// NewAdapterFromClient wraps an existing client without contacting it.
func NewAdapterFromClient(client redis.UniversalClient, log logger.Logger, opts ...Option) *RedisAdapter {
	var o adapterOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &RedisAdapter{
		client:  client,
		logger:  log,
		metrics: o.metrics,
	}
	a.batches = batch.NewAdapter(a)
	a.prober = probe.New(a, o.probe...)
	return a
}

// Client returns the underlying go-redis client for direct access when needed
func (a *RedisAdapter) Client() redis.UniversalClient {
	return a.client
}

// Prober returns the health check prober bound to this adapter.
func (a *RedisAdapter) Prober() *probe.Prober {
	return a.prober
}

// Describe reports the addressing mode and endpoints of the client.
func (a *RedisAdapter) Describe() probe.Target {
	switch c := a.client.(type) {
	case *redis.ClusterClient:
		return probe.Target{
			Mode:         ModeCluster,
			ClusterNodes: append([]string(nil), c.Options().Addrs...),
		}
	case *redis.Client:
		o := c.Options()
		return probe.Target{
			Mode: ModeStandalone,
			Addr: o.Addr,
			DB:   o.DB,
		}
	default:
		return probe.Target{}
	}
}

// Ping verifies the Redis connection is alive
func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// Get retrieves a value by key. A missing key yields ErrKeyNotFound.
func (a *RedisAdapter) Get(ctx context.Context, key string) (string, error) {
	ctx, span := tracing.StartStoreSpan(ctx, tracing.SpanOperationGet, a.spanOptions(tracing.WithStoreKey(key))...)
	val, err := a.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		tracing.End(span, nil)
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	tracing.End(span, err)
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Set stores a key-value pair without expiration
func (a *RedisAdapter) Set(ctx context.Context, key, value string) error {
	return a.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a key-value pair expiring after ttl
func (a *RedisAdapter) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := tracing.StartStoreSpan(ctx, tracing.SpanOperationSet, a.spanOptions(tracing.WithStoreKey(key))...)
	err := a.client.Set(ctx, key, value, ttl).Err()
	tracing.End(span, err)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes keys and returns how many existed.
func (a *RedisAdapter) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	ctx, span := tracing.StartStoreSpan(ctx, tracing.SpanOperationDelete, a.spanOptions()...)
	n, err := a.client.Del(ctx, keys...).Result()
	tracing.End(span, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}
	return n, nil
}

// Multi starts a new atomic batch.
func (a *RedisAdapter) Multi() *batch.Batch {
	return a.batches.Multi()
}

// ExecuteBatch builds and executes one atomic batch, returning every value
// in queue order or the first error.
func (a *RedisAdapter) ExecuteBatch(ctx context.Context, build func(batch.Queuer) error) ([]any, error) {
	return a.batches.Execute(ctx, build)
}

// HealthCheck runs the write/verify probe with the configured deadline.
func (a *RedisAdapter) HealthCheck(ctx context.Context) error {
	return a.HealthCheckWithDeadline(ctx, a.prober.Deadline())
}

// HealthCheckWithDeadline runs the write/verify probe bounded by deadline.
// Failures are *probe.Error values.
func (a *RedisAdapter) HealthCheckWithDeadline(ctx context.Context, deadline time.Duration) error {
	spanCtx, span := tracing.StartStoreSpan(ctx, tracing.SpanOperationHealthCheck, a.spanOptions()...)
	start := time.Now()
	err := a.prober.CheckWithDeadline(spanCtx, deadline)
	tracing.End(span, err)

	// a check abandoned by its caller says nothing about the store
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}

	kind := ""
	if perr, ok := probe.AsError(err); ok {
		kind = string(perr.Kind)
	}
	a.metrics.RecordHealthCheck(kind, time.Since(start))
	return err
}

// Close gracefully closes the Redis connection
func (a *RedisAdapter) Close() error {
	a.logger.Info("closing Redis connection")

	if err := a.client.Close(); err != nil {
		a.logger.Error("failed to close Redis connection", "error", err)
		return fmt.Errorf("failed to close redis connection: %w", err)
	}

	a.logger.Info("Redis connection closed successfully")
	return nil
}

func (a *RedisAdapter) spanOptions(extra ...tracing.StoreSpanOption) []tracing.StoreSpanOption {
	opts := []tracing.StoreSpanOption{
		tracing.WithStoreSystem("redis"),
		tracing.WithStoreMode(a.Describe().Mode),
	}
	return append(opts, extra...)
}
