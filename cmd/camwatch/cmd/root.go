package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/service/monitor"
	"github.com/oshokin/camwatch/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string
	// serverAddress of the running monitor for control commands.
	serverAddress string
	// callTimeout bounds control calls.
	callTimeout time.Duration
	// listenAddress overrides the configured gRPC listen address of serve.
	listenAddress string

	// rootCmd runs the monitor when no subcommand is given.
	rootCmd = &cobra.Command{
		Use:   "camwatch",
		Short: "Monitor camera liveness and notify subscribers.",
		Long: `Polls every configured camera at a fixed interval, debounces the results into
UP and DOWN states and notifies Telegram subscribers when a camera changes state.

Without a subcommand camwatch runs the monitor (same as "camwatch serve").
Control subcommands talk to a running monitor over its local gRPC API.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor until interrupted.",
		Long: `Loads the configuration, restores the saved state and starts polling.
Notifications go to Telegram when enabled, otherwise to the log.
SIGINT or SIGTERM stop the monitor after the cycle in flight completes.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

// runServe starts the monitor with graceful shutdown on SIGINT and SIGTERM.
func runServe(_ *cobra.Command, _ []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	options := &monitor.Options{
		ConfigPath:    configPath,
		ListenAddress: listenAddress,
		LogLevel:      logLevel,
	}

	return monitor.Run(ctx, options)
}

// Execute runs the camwatch CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().
		StringVarP(&serverAddress, "address", "a", "", "control API address of the running monitor (default from config)")
	rootCmd.PersistentFlags().
		DurationVar(&callTimeout, "timeout", config.DefaultTimeout, "timeout of control API calls")

	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVarP(&listenAddress, "listen", "l", "", "override the configured gRPC listen address")
	}

	rootCmd.AddCommand(serveCmd, statusCmd, pingCmd, subscribersCmd, validateCmd)
}
