// Package config loads the redis wrapper configuration with viper.
package config

import "time"

// Config is the root configuration structure
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis"`
	HealthCheck   HealthCheckConfig   `mapstructure:"healthcheck" yaml:"healthcheck"`
	Management    ManagementConfig    `mapstructure:"management" yaml:"management"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// RedisConfig selects and tunes the Redis client. Exactly one of URL and
// ClusterAddrs must be set.
type RedisConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	ClusterAddrs     []string      `mapstructure:"cluster_addrs" yaml:"cluster_addrs"`
	Password         string        `mapstructure:"password" yaml:"password"`
	MaxConns         int           `mapstructure:"max_conns" yaml:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Redacted returns a copy safe to print: the password and any URL
// credentials are masked.
func (c RedisConfig) Redacted() RedisConfig {
	out := c
	out.ClusterAddrs = append([]string(nil), c.ClusterAddrs...)
	if out.Password != "" {
		out.Password = redactedValue
	}
	out.URL = redactURL(c.URL)
	return out
}

// HealthCheckConfig configures the write/verify probe and its schedule.
type HealthCheckConfig struct {
	Deadline  time.Duration `mapstructure:"deadline" yaml:"deadline"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	KeyTTL    time.Duration `mapstructure:"key_ttl" yaml:"key_ttl"`
	Namespace string        `mapstructure:"namespace" yaml:"namespace"`
	// ReadyRateLimit bounds live checks run by /ready per second; requests
	// above the limit get the latest monitored result
	ReadyRateLimit float64 `mapstructure:"ready_rate_limit" yaml:"ready_rate_limit"`
	ReadyBurst     int     `mapstructure:"ready_burst" yaml:"ready_burst"`
}

// ManagementConfig configures the management server
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "rediswrapper",
			Environment: "production",
		},
		Redis: RedisConfig{
			MaxConns:         10,
			OperationTimeout: 3 * time.Second,
			DialTimeout:      5 * time.Second,
		},
		HealthCheck: HealthCheckConfig{
			Deadline:       2 * time.Second,
			Interval:       time.Second,
			KeyTTL:         60 * time.Second,
			Namespace:      "_redis-wrapper",
			ReadyRateLimit: 1,
			ReadyBurst:     1,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEndpoint:   "localhost:4317",
			TracingSampleRate: 0.1,
		},
	}
}
