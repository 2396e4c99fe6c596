// Package cli builds the rediswrapper command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nimburion/rediswrapper/pkg/config"
	"github.com/nimburion/rediswrapper/pkg/health"
	"github.com/nimburion/rediswrapper/pkg/monitor"
	"github.com/nimburion/rediswrapper/pkg/observability/logger"
	"github.com/nimburion/rediswrapper/pkg/observability/metrics"
	"github.com/nimburion/rediswrapper/pkg/observability/tracing"
	"github.com/nimburion/rediswrapper/pkg/probe"
	"github.com/nimburion/rediswrapper/pkg/server"
	"github.com/nimburion/rediswrapper/pkg/store"
	"github.com/nimburion/rediswrapper/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	defaultName      = "rediswrapper"
	defaultEnvPrefix = "APP"
	redisCheckName   = "redis"
)

// ServiceCommandOptions customizes the command tree.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// NewRootCommand returns the command tree with default options.
func NewRootCommand() *cobra.Command {
	return NewServiceCommand(ServiceCommandOptions{
		Name:        defaultName,
		Description: "Redis write/verify health checks",
	})
}

// NewServiceCommand creates the CLI with check, monitor, config and version subcommands.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = defaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var secretFilePath string
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.StringVar(&secretFilePath, "secret-file", "", fmt.Sprintf("path to secrets file (sets %s_SECRETS_FILE)", opts.EnvPrefix))
	flags.String("redis-url", "", "redis URL, e.g. redis://localhost:6379/0")
	flags.StringSlice("cluster-addrs", nil, "redis cluster seed addresses (repeatable)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: json, text")

	loadConfig := func(fs *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, secretFilePath, fs, rootCmd.ErrOrStderr())
	}

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
		},
	})

	// config command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			text, err := formatConfig(cfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	})

	// check command
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single health check and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			adapter, err := store.NewRedisAdapter(cfg, log, nil)
			if err != nil {
				return err
			}
			defer adapter.Close()

			if err := adapter.HealthCheck(cmd.Context()); err != nil {
				if werr := writeFailure(cmd.OutOrStdout(), err); werr != nil {
					return errors.Join(err, werr)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), monitor.MessageOK)
			return nil
		},
	}
	checkCmd.Flags().Duration("deadline", 0, "health check deadline")
	rootCmd.AddCommand(checkCmd)

	// monitor command
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check Redis on an interval and serve /health, /ready and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMonitor(runCtx, cfg, log, opts.Name)
		},
	}
	monitorCmd.Flags().Duration("deadline", 0, "health check deadline")
	monitorCmd.Flags().Duration("interval", 0, "interval between health checks")
	monitorCmd.Flags().Int("management-port", 0, "management server port")
	rootCmd.AddCommand(monitorCmd)

	return rootCmd
}

// LoadConfigAndLogger loads configuration (defaults, file, secrets, env and
// flags, in increasing precedence) and builds the logger it describes.
// out receives log output; nil means stdout.
func LoadConfigAndLogger(
	cfgPath,
	envPrefix,
	secretFilePath string,
	flags *pflag.FlagSet,
	out io.Writer,
) (*config.Config, logger.Logger, error) {
	if envPrefix == "" {
		envPrefix = defaultEnvPrefix
	}
	if err := applySecretFileFlag(envPrefix, secretFilePath); err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
		Output: out,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	if strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		log.Debug("effective configuration", "redis", cfg.Redis.Redacted(), "healthcheck", cfg.HealthCheck)
	}
	return cfg, log, nil
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(strings.ToUpper(strings.TrimSpace(envPrefix))+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func formatConfig(cfg *config.Config) (string, error) {
	if cfg == nil {
		return "{}\n", nil
	}
	out := *cfg
	out.Redis = cfg.Redis.Redacted()
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// failureReport is the JSON printed by the check command on failure.
type failureReport struct {
	Status  string         `json:"status"`
	Kind    string         `json:"kind,omitempty"`
	Message string         `json:"message"`
	Cause   string         `json:"cause,omitempty"`
	Context *probe.Context `json:"context,omitempty"`
}

func writeFailure(w io.Writer, err error) error {
	report := failureReport{Status: monitor.MessageFailed, Message: err.Error()}
	if perr, ok := probe.AsError(err); ok {
		report.Kind = string(perr.Kind)
		report.Message = perr.Message
		report.Context = &perr.Context
		if perr.Cause != nil {
			report.Cause = perr.Cause.Error()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runMonitor(ctx context.Context, cfg *config.Config, log logger.Logger, serviceName string) error {
	info := version.Current(serviceName)
	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	metricsRegistry := metrics.NewRegistry()
	adapter, err := store.NewRedisAdapter(cfg, log, metricsRegistry)
	if err != nil {
		return err
	}
	defer adapter.Close()

	mon := monitor.New(adapter, log, monitor.WithInterval(cfg.HealthCheck.Interval))
	log.Info("starting health monitor", "version", info.String(), "target", adapter.Describe())

	if !cfg.Management.Enabled {
		return mon.Run(ctx)
	}

	healthRegistry := health.NewRegistry()
	healthRegistry.Register(health.NewProbeChecker(redisCheckName, adapter))
	mgmt := server.NewManagementServer(cfg.Management, log, healthRegistry, metricsRegistry,
		server.WithReadyLimit(cfg.HealthCheck.ReadyRateLimit, cfg.HealthCheck.ReadyBurst, mon.Checker(redisCheckName)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		err := mgmt.Start(runCtx)
		if err != nil {
			cancel()
		}
		serverErr <- err
	}()

	monErr := mon.Run(runCtx)
	cancel()

	select {
	case err := <-serverErr:
		return errors.Join(monErr, err)
	case <-time.After(35 * time.Second):
		return errors.Join(monErr, errors.New("management server did not stop in time"))
	}
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
