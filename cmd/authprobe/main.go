// Package main provides the authprobe CLI, a manual integration-test runner
// for the authentication API.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/authprobe/config"
	"github.com/c360studio/authprobe/scenarios"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "authprobe"
)

// errScenariosFailed is returned under --strict when any scenario failed.
var errScenariosFailed = errors.New("some scenarios failed")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the raw flag values. Only flags the user set override the
// loaded configuration.
type options struct {
	configPath    string
	baseURL       string
	email         string
	password      string
	name          string
	uniqueEmail   bool
	timeout       time.Duration
	globalTimeout time.Duration
	wait          bool
	outputJSON    bool
	strict        bool
	logLevel      string
	metricsFile   string
	pushgateway   string
	natsURL       string
	natsSubject   string
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "authprobe [scenario]",
		Short: "Exercise an authentication API end-to-end",
		Long: `Run integration tests against an authentication HTTP API.

Available scenarios:
  auth-flow         - Register, login, fetch /me and refresh the token (default)
  auth-guards       - Check that bad credentials and tokens are rejected
  account-recovery  - Request a password reset and a verification resend
  all               - Run all scenarios

Examples:
  authprobe                                   # Run auth-flow against localhost:8080
  authprobe all --json                        # Run everything, JSON output
  authprobe --base-url http://host:9000/auth  # Custom API root
  authprobe --unique-email --wait             # Fresh account, wait for the service
`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioName := "auth-flow"
			if len(args) > 0 {
				scenarioName = args[0]
			}

			cfg, logger, err := buildConfig(cmd, &opts, stderr)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			return run(cmd.Context(), scenarioName, cfg, opts, stdout, stderr, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	flags.StringVar(&opts.baseURL, "base-url", config.DefaultBaseURL, "Base URL of the auth API")
	flags.StringVar(&opts.email, "email", config.DefaultEmail, "Email to register and log in with")
	flags.StringVar(&opts.password, "password", config.DefaultPassword, "Password to register and log in with")
	flags.StringVar(&opts.name, "name", config.DefaultName, "Display name to register with")
	flags.BoolVar(&opts.uniqueEmail, "unique-email", false, "Tag the email with a random suffix so every run registers a new account")
	flags.DurationVar(&opts.timeout, "timeout", config.DefaultRequestTimeout, "Per-request and per-stage timeout")
	flags.DurationVar(&opts.globalTimeout, "global-timeout", config.DefaultGlobalTimeout, "Global timeout for all scenarios")
	flags.BoolVar(&opts.wait, "wait", false, "Wait for the service to answer before running")
	flags.BoolVar(&opts.outputJSON, "json", false, "Output results as JSON")
	flags.BoolVar(&opts.strict, "strict", false, "Exit non-zero when any stage fails")
	flags.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	flags.StringVar(&opts.pushgateway, "pushgateway", "", "Push Prometheus metrics to this Pushgateway URL")
	flags.StringVar(&opts.natsURL, "nats", "", "Publish the run report to this NATS server")
	flags.StringVar(&opts.natsSubject, "nats-subject", config.DefaultNATSSubject, "Base NATS subject for run reports")

	cmd.AddCommand(listCmd(stdout))
	cmd.AddCommand(initCmd(stdout, stderr))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func listCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, "Available scenarios:")
			fmt.Fprintln(stdout)
			for _, s := range scenarioList(config.DefaultConfig(), scenarios.Deps{}) {
				fmt.Fprintf(stdout, "  %-18s %s\n", s.Name(), s.Description())
			}
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "Use 'authprobe all' to run all scenarios.")
		},
	}
}

func initCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(newLogger(config.DefaultLogLevel, stderr)).EnsureUserConfig()
			if err != nil {
				return fmt.Errorf("init config: %w", err)
			}
			fmt.Fprintf(stdout, "User config: %s\n", path)
			return nil
		},
	}
}

// buildConfig layers flags over the loaded configuration and validates the result.
func buildConfig(cmd *cobra.Command, opts *options, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	bootLevel := config.DefaultLogLevel
	if cmd.Flags().Changed("log-level") {
		bootLevel = opts.logLevel
	}
	loader := config.NewLoader(newLogger(bootLevel, stderr))

	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.BaseURL = strings.TrimRight(opts.baseURL, "/")
	}
	if changed("email") {
		cfg.Credentials.Email = opts.email
	}
	if changed("password") {
		cfg.Credentials.Password = opts.password
	}
	if changed("name") {
		cfg.Credentials.Name = opts.name
	}
	if changed("unique-email") {
		cfg.UniqueEmail = opts.uniqueEmail
	}
	if changed("timeout") {
		cfg.RequestTimeout = opts.timeout
		cfg.StageTimeout = opts.timeout
	}
	if changed("global-timeout") {
		cfg.GlobalTimeout = opts.globalTimeout
	}
	if changed("wait") {
		cfg.WaitForReady = opts.wait
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("metrics-file") {
		cfg.Metrics.TextfilePath = opts.metricsFile
	}
	if changed("pushgateway") {
		cfg.Metrics.PushgatewayURL = opts.pushgateway
	}
	if changed("nats") {
		cfg.NATS.URL = opts.natsURL
	}
	if changed("nats-subject") {
		cfg.NATS.Subject = opts.natsSubject
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.LogLevel, stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(logLevel string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
