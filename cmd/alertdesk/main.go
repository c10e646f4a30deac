// Command alertdesk binds the alert page behaviors to rendered pages and
// drives them from the command line or through a live browser.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alertdesk/internal/config"
	"alertdesk/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "alertdesk",
	Short: "Alert page behaviors: cache invalidation, toggles and the submit guard",
	Long: `alertdesk binds the alert management page behaviors to a rendered page.

A page argument is either a file or an http(s) URL. The cache invalidation
endpoint comes from invalidate.url in the config file, ALERTDESK_INVALIDATE_URL,
or the --url flag of the invalidate command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		opts := cfg.Logging.Options()
		if verbose {
			opts.Level = "debug"
			opts.DebugMode = true
		}
		if err := logging.Initialize(opts); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Base()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "alertdesk.yaml", "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	invalidateCmd.Flags().String("url", "", "Invalidation endpoint (overrides config)")
	invalidateCmd.Flags().String("out", "", "Write the resulting page to this file")
	checkCmd.Flags().Int("parallel", 4, "Pages bound at once")
	liveCmd.Flags().Bool("headless", false, "Run Chrome headless")
	liveCmd.Flags().String("debugger-url", "", "Attach to a running Chrome instead of launching one")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(liveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext is cancelled by SIGINT/SIGTERM or after the global timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// interruptContext is cancelled only by SIGINT/SIGTERM, for long-running commands.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func currentConfig() *config.Config {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return cfg
}
