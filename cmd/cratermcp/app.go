package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/cratermcp"
	"pkt.systems/cratermcp/internal/svcfields"
	"pkt.systems/cratermcp/mcp"
	"pkt.systems/pslog"
)

const (
	configKey         = "config"
	logLevelKey       = "log-level"
	craterURLKey      = "crater.url"
	craterEmailKey    = "crater.email"
	craterPasswordKey = "crater.password"
	craterTokenKey    = "crater.api_token"
	craterDeviceKey   = "crater.device_name"
	craterTimeoutKey  = "crater.http_timeout"
	mcpTokenKey       = "mcp.token"
	mcpListenKey      = "mcp.listen"
	mcpPortKey        = "mcp.port"
	mcpTransportKey   = "mcp.transport"
	mcpStdioKey       = "mcp.stdio"
	metricsListenKey  = "metrics_listen"
	pprofListenKey    = "pprof_listen"
	runtimeMetricsKey = "runtime_metrics"
	otlpEndpointKey   = "otlp_endpoint"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("CRATER_MCP_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "cratermcp")
	cmd := newRootCommand(baseLogger)
	rootInvocation := invocationTargetsRootCommand(cmd, os.Args[1:])
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			if rootInvocation {
				svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
		}
		return 1
	}
	return 0
}

// invocationTargetsRootCommand reports whether args run the server itself
// rather than a subcommand. Server failures are logged; subcommand failures
// are printed plainly.
func invocationTargetsRootCommand(root *cobra.Command, args []string) bool {
	lookup := func(arg string) *pflag.Flag {
		if name, ok := strings.CutPrefix(arg, "--"); ok {
			if f := root.Flags().Lookup(name); f != nil {
				return f
			}
			return root.PersistentFlags().Lookup(name)
		}
		short := strings.TrimPrefix(arg, "-")
		if len(short) != 1 {
			return nil
		}
		if f := root.Flags().ShorthandLookup(short); f != nil {
			return f
		}
		return root.PersistentFlags().ShorthandLookup(short)
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return true
		}
		if strings.HasPrefix(arg, "-") && arg != "-" {
			if strings.Contains(arg, "=") {
				continue
			}
			flag := lookup(arg)
			if flag == nil {
				for _, rest := range args[i+1:] {
					if isSubcommandToken(root, rest) {
						return false
					}
				}
				return true
			}
			if flag.NoOptDefVal == "" {
				i++
			}
			continue
		}
		return !isSubcommandToken(root, arg)
	}
	return true
}

func isSubcommandToken(root *cobra.Command, token string) bool {
	for _, sub := range root.Commands() {
		if sub.Name() == token || sub.HasAlias(token) {
			return true
		}
	}
	return false
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString(configKey))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if candidate, err := cratermcp.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cratermcp",
		Short:         "cratermcp exposes a Crater invoicing installation to MCP agents",
		SilenceErrors: true,
		Example: `
  # SSE on :3001, logging in with email and password
  CRATER_URL=https://crater.example.com CRATER_EMAIL=agent@example.com CRATER_PASSWORD=... MCP_SERVER_TOKEN=s3cret cratermcp

  # Direct pipe for a local agent launcher, using a pre-issued API token
  CRATER_URL=https://crater.example.com CRATER_API_TOKEN=... cratermcp --stdio

  # Prometheus metrics and OTLP traces
  cratermcp --metrics-listen :9464 --otlp-endpoint grpc://localhost:4317
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServer(cmd.Context(), baseLogger)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.cratermcp/"+cratermcp.DefaultConfigFileName+")")
	persistentFlags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	persistentFlags.String("crater-url", cratermcp.DefaultCraterURL, "Crater installation base URL")
	persistentFlags.String("crater-email", "", "Crater login email")
	persistentFlags.String("crater-password", "", "Crater login password")
	persistentFlags.String("crater-api-token", "", "pre-issued Crater API token (used as-is when no email/password is set)")
	persistentFlags.String("device-name", cratermcp.DefaultDeviceName, "device name reported to Crater on login")
	persistentFlags.Duration("http-timeout", cratermcp.DefaultHTTPTimeout, "timeout for each Crater request")

	flags := cmd.Flags()
	flags.String("transport", cratermcp.DefaultTransport, "MCP transport (sse or stdio)")
	flags.Bool("stdio", false, "serve MCP over stdin/stdout (same as --transport stdio)")
	flags.StringP("listen", "l", "", "SSE listen address (defaults to :$PORT, then "+cratermcp.DefaultListen+")")
	flags.Int("port", 0, fmt.Sprintf("SSE port when --listen is empty (default %d)", cratermcp.DefaultPort))
	flags.String("mcp-token", "", "shared secret required on SSE requests (empty disables the check)")
	flags.String("metrics-listen", cratermcp.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", cratermcp.DefaultPprofListen, "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime metrics on the Prometheus endpoint")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")

	mustBindFlag(configKey, "CRATER_MCP_CONFIG", persistentFlags.Lookup("config"))
	mustBindFlag(logLevelKey, "CRATER_MCP_LOG_LEVEL", persistentFlags.Lookup("log-level"))
	mustBindFlag(craterURLKey, "CRATER_URL", persistentFlags.Lookup("crater-url"))
	mustBindFlag(craterEmailKey, "CRATER_EMAIL", persistentFlags.Lookup("crater-email"))
	mustBindFlag(craterPasswordKey, "CRATER_PASSWORD", persistentFlags.Lookup("crater-password"))
	mustBindFlag(craterTokenKey, "CRATER_API_TOKEN", persistentFlags.Lookup("crater-api-token"))
	mustBindFlag(craterDeviceKey, "CRATER_DEVICE_NAME", persistentFlags.Lookup("device-name"))
	mustBindFlag(craterTimeoutKey, "CRATER_HTTP_TIMEOUT", persistentFlags.Lookup("http-timeout"))
	mustBindFlag(mcpTransportKey, "CRATER_MCP_TRANSPORT", flags.Lookup("transport"))
	mustBindFlag(mcpStdioKey, "CRATER_MCP_STDIO", flags.Lookup("stdio"))
	mustBindFlag(mcpListenKey, "CRATER_MCP_LISTEN", flags.Lookup("listen"))
	mustBindFlag(mcpPortKey, "PORT", flags.Lookup("port"))
	mustBindFlag(mcpTokenKey, "MCP_SERVER_TOKEN", flags.Lookup("mcp-token"))
	mustBindFlag(metricsListenKey, "CRATER_MCP_METRICS_LISTEN", flags.Lookup("metrics-listen"))
	mustBindFlag(pprofListenKey, "CRATER_MCP_PPROF_LISTEN", flags.Lookup("pprof-listen"))
	mustBindFlag(runtimeMetricsKey, "CRATER_MCP_ENABLE_PROFILING_METRICS", flags.Lookup("enable-profiling-metrics"))
	mustBindFlag(otlpEndpointKey, "CRATER_MCP_OTLP_ENDPOINT", flags.Lookup("otlp-endpoint"))

	cmd.AddCommand(newLoginCommand(baseLogger))
	cmd.AddCommand(newToolsCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func mustBindFlag(key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

// configFromViper assembles and validates the process configuration from the
// merged flag, environment, and config file values.
func configFromViper() (cratermcp.Config, error) {
	cfg := cratermcp.Config{
		CraterURL:      strings.TrimSpace(viper.GetString(craterURLKey)),
		Email:          strings.TrimSpace(viper.GetString(craterEmailKey)),
		Password:       viper.GetString(craterPasswordKey),
		APIToken:       strings.TrimSpace(viper.GetString(craterTokenKey)),
		DeviceName:     strings.TrimSpace(viper.GetString(craterDeviceKey)),
		HTTPTimeout:    viper.GetDuration(craterTimeoutKey),
		Transport:      strings.TrimSpace(viper.GetString(mcpTransportKey)),
		Listen:         strings.TrimSpace(viper.GetString(mcpListenKey)),
		Port:           viper.GetInt(mcpPortKey),
		MCPToken:       strings.TrimSpace(viper.GetString(mcpTokenKey)),
		MetricsListen:  strings.TrimSpace(viper.GetString(metricsListenKey)),
		PprofListen:    strings.TrimSpace(viper.GetString(pprofListenKey)),
		RuntimeMetrics: viper.GetBool(runtimeMetricsKey),
		OTLPEndpoint:   strings.TrimSpace(viper.GetString(otlpEndpointKey)),
	}
	if viper.GetBool(mcpStdioKey) {
		cfg.Transport = mcp.TransportStdio
	}
	if err := cfg.Validate(); err != nil {
		return cratermcp.Config{}, err
	}
	return cfg, nil
}

func applyLogLevel(logger pslog.Logger) pslog.Logger {
	logLevel := strings.TrimSpace(viper.GetString(logLevelKey))
	if logLevel == "" {
		return logger
	}
	if level, ok := pslog.ParseLevel(logLevel); ok {
		return logger.LogLevel(level)
	}
	return logger
}

func runServer(ctx context.Context, baseLogger pslog.Logger) error {
	configFile, err := loadConfigFile()
	if err != nil {
		return err
	}
	logger := applyLogLevel(baseLogger)
	cliLogger := svcfields.WithSubsystem(logger, "cli.root")
	svcfields.WithSubsystem(logger, "server.lifecycle.init").WithLogLevel().Info(
		"welcome to cratermcp",
		"app", "cratermcp",
		"pid", os.Getpid(),
	)
	if configFile != "" {
		cliLogger.Info("loaded config file", "path", configFile)
	}

	cfg, err := configFromViper()
	if err != nil {
		return err
	}
	if !cfg.HasCredentials() {
		cliLogger.Warn("no Crater credentials configured; tool calls will fail until CRATER_EMAIL/CRATER_PASSWORD or CRATER_API_TOKEN is set")
	}

	telemetry, err := cratermcp.StartTelemetry(ctx, cfg.TelemetryConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			cliLogger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	srv, err := mcp.NewServer(mcp.NewServerRequest{
		Config: cfg.MCPConfig(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if configFile != "" && cfg.Transport == mcp.TransportSSE {
		watchSharedSecret(srv, cfg.MCPToken, svcfields.WithSubsystem(logger, svcfields.ConfigReload))
	}
	return srv.Run(ctx)
}

// watchSharedSecret re-reads mcp.token whenever the config file changes and
// swaps it into srv.
func watchSharedSecret(srv mcp.Server, initial string, logger pslog.Logger) {
	current := initial
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := strings.TrimSpace(viper.GetString(mcpTokenKey))
		if next == current {
			logger.Debug("config.reload.unchanged", "path", e.Name)
			return
		}
		current = next
		srv.SetSharedSecret(next)
		logger.Info("config.reload.mcp_token", "path", e.Name, "enabled", next != "")
	})
	viper.WatchConfig()
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
