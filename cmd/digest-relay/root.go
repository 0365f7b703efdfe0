package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"digest-relay-go/internal/app"
	"digest-relay-go/internal/config"
)

var (
	cfgFile string
	dryRun  bool
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "digest-relay",
	Short: "Channel digest ingestion and publication service",
	Long: `digest-relay reads public channels, drops posts it has already seen,
groups the rest by marketplace and publishes one digest per cycle.

Example usage:
  digest-relay serve              # Run the scheduler and the HTTP API
  digest-relay run-once           # Run a single cycle and print its stats
  digest-relay run-once --dry-run # Build the digest without publishing it
  digest-relay purge              # Drop fingerprints past retention`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "build digests without publishing them")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dryRun {
		cfg.Publish.Enabled = false
	}
	return app.ConfigureLogging(cfg.Log.Level)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
