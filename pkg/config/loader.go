package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const redactedValue = "******"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader with precedence:
// flags > ENV > secrets file > config file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "APP")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"redis-url":       "redis.url",
	"cluster-addrs":   "redis.cluster_addrs",
	"deadline":        "healthcheck.deadline",
	"interval":        "healthcheck.interval",
	"management-port": "management.port",
	"log-level":       "observability.log_level",
	"log-format":      "observability.log_format",
}

// WithFlags binds the known flags of fs that were set explicitly.
func (l *ViperLoader) WithFlags(fs *pflag.FlagSet) *ViperLoader {
	l.flags = fs
	return l
}

// Load reads defaults, the config file, the secrets file, the environment
// and flags, then validates the result.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	secretsFile, err := l.discoverSecretsFile()
	if err != nil {
		return nil, err
	}
	if secretsFile != "" {
		secrets := viper.New()
		secrets.SetConfigFile(secretsFile)
		if err := secrets.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
		}
		if err := v.MergeConfigMap(secrets.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge secrets: %w", err)
		}
	}

	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("redis.url", l.prefixedEnv("REDIS_URL"))
	v.BindEnv("redis.cluster_addrs", l.prefixedEnv("REDIS_CLUSTER_ADDRS"))
	v.BindEnv("redis.password", l.prefixedEnv("REDIS_PASSWORD"))
	v.BindEnv("redis.max_conns", l.prefixedEnv("REDIS_MAX_CONNS"))
	v.BindEnv("redis.operation_timeout", l.prefixedEnv("REDIS_OPERATION_TIMEOUT"))
	v.BindEnv("redis.dial_timeout", l.prefixedEnv("REDIS_DIAL_TIMEOUT"))

	v.BindEnv("healthcheck.deadline", l.prefixedEnv("HEALTHCHECK_DEADLINE"))
	v.BindEnv("healthcheck.interval", l.prefixedEnv("HEALTHCHECK_INTERVAL"))
	v.BindEnv("healthcheck.key_ttl", l.prefixedEnv("HEALTHCHECK_KEY_TTL"))
	v.BindEnv("healthcheck.namespace", l.prefixedEnv("HEALTHCHECK_NAMESPACE"))
	v.BindEnv("healthcheck.ready_rate_limit", l.prefixedEnv("HEALTHCHECK_READY_RATE_LIMIT"))
	v.BindEnv("healthcheck.ready_burst", l.prefixedEnv("HEALTHCHECK_READY_BURST"))

	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))

	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

// bindFlags overrides keys with flags the user actually set, so flag
// defaults never shadow file or env values.
func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	var errs []error
	l.flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("failed to bind flag --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "APP"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.cluster_addrs", cfg.Redis.ClusterAddrs)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.max_conns", cfg.Redis.MaxConns)
	v.SetDefault("redis.operation_timeout", cfg.Redis.OperationTimeout)
	v.SetDefault("redis.dial_timeout", cfg.Redis.DialTimeout)

	v.SetDefault("healthcheck.deadline", cfg.HealthCheck.Deadline)
	v.SetDefault("healthcheck.interval", cfg.HealthCheck.Interval)
	v.SetDefault("healthcheck.key_ttl", cfg.HealthCheck.KeyTTL)
	v.SetDefault("healthcheck.namespace", cfg.HealthCheck.Namespace)
	v.SetDefault("healthcheck.ready_rate_limit", cfg.HealthCheck.ReadyRateLimit)
	v.SetDefault("healthcheck.ready_burst", cfg.HealthCheck.ReadyBurst)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
}

// Validate validates the configuration and returns every problem found
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.Redis.ClusterAddrs = normalizeStringSlice(cfg.Redis.ClusterAddrs)

	switch {
	case cfg.Redis.URL == "" && len(cfg.Redis.ClusterAddrs) == 0:
		errs = append(errs, errors.New("one of redis.url or redis.cluster_addrs is required"))
	case cfg.Redis.URL != "" && len(cfg.Redis.ClusterAddrs) > 0:
		errs = append(errs, errors.New("redis.url and redis.cluster_addrs are mutually exclusive"))
	}
	if cfg.Redis.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("redis.max_conns must be >= 0, got %d", cfg.Redis.MaxConns))
	}
	if cfg.Redis.OperationTimeout <= 0 {
		errs = append(errs, errors.New("redis.operation_timeout must be positive"))
	}
	if cfg.Redis.DialTimeout <= 0 {
		errs = append(errs, errors.New("redis.dial_timeout must be positive"))
	}

	hc := cfg.HealthCheck
	if hc.Deadline <= 0 {
		errs = append(errs, errors.New("healthcheck.deadline must be positive"))
	}
	if hc.Interval <= 0 {
		errs = append(errs, errors.New("healthcheck.interval must be positive"))
	}
	if hc.KeyTTL <= hc.Deadline {
		errs = append(errs, fmt.Errorf("healthcheck.key_ttl (%s) must be greater than healthcheck.deadline (%s)", hc.KeyTTL, hc.Deadline))
	}
	if strings.TrimSpace(hc.Namespace) == "" {
		errs = append(errs, errors.New("healthcheck.namespace is required"))
	}
	if hc.ReadyRateLimit <= 0 {
		errs = append(errs, errors.New("healthcheck.ready_rate_limit must be positive"))
	}
	if hc.ReadyBurst < 1 {
		errs = append(errs, errors.New("healthcheck.ready_burst must be at least 1"))
	}

	if cfg.Management.Enabled && (cfg.Management.Port < 0 || cfg.Management.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid management.port: %d", cfg.Management.Port))
	}

	obs := cfg.Observability
	if !contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(obs.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s", obs.LogLevel))
	}
	if !contains([]string{"json", "text", "console"}, strings.ToLower(obs.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s", obs.LogFormat))
	}
	if obs.TracingSampleRate < 0 || obs.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1, got %v", obs.TracingSampleRate))
	}
	if obs.TracingEnabled && strings.TrimSpace(obs.TracingEndpoint) == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

// discoverSecretsFile finds the secrets file:
// 1. <ENV_PREFIX>_SECRETS_FILE (default APP_SECRETS_FILE)
// 2. secrets.{ext} next to the config file
func (l *ViperLoader) discoverSecretsFile() (string, error) {
	secretsEnv := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(secretsEnv); ok {
		secretsFile := strings.TrimSpace(raw)
		if secretsFile == "" {
			return "", fmt.Errorf("%s is set but empty", secretsEnv)
		}
		info, err := os.Stat(secretsFile)
		if err != nil {
			return "", fmt.Errorf("%s points to an inaccessible file %s: %w", secretsEnv, secretsFile, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s must point to a file, got directory %s", secretsEnv, secretsFile)
		}
		return secretsFile, nil
	}

	if l.configFile != "" {
		secretsFile := filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile))
		if info, err := os.Stat(secretsFile); err == nil && !info.IsDir() {
			return secretsFile, nil
		}
	}
	return "", nil
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redactedValue)
	}
	return u.String()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func normalizeStringSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
