// Package main provides the indexcompare CLI: incremental close acquisition,
// ratio indicators, valuation analysis and report rendering for a family of
// market indices, plus a scheduled-refresh daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"index-compare/internal/config"
)

var (
	configPath string
	verbose    bool
	useMemory  bool
)

// rootCmd is the base command for the indexcompare CLI.
var rootCmd = &cobra.Command{
	Use:   "indexcompare",
	Short: "Relative valuation analysis for index families",
	Long: `indexcompare tracks how expensive each target index is relative to its
benchmark. It fetches daily closes, derives the target/benchmark ratio with a
rolling mean, classifies the current reading (historical percentile, trend,
deviation) and renders a self-contained HTML report.

Run 'indexcompare run' for the full batch, or the individual stage commands
(fetch, calc, analyze, report) against previously persisted artifacts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the JSON config file (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "use-memory", false, "Use in-memory storage regardless of the configured backend")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config; an empty path yields
// the validated defaults.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

// newLogger builds the CLI console logger. --verbose lowers the level to
// debug.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// signalContext returns a context cancelled on the first SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
