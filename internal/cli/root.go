// Package cli implements the reader command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/samvad-reader/internal/app"
	"github.com/samvad-hq/samvad-reader/internal/config"
	"github.com/samvad-hq/samvad-reader/internal/logger"
	"github.com/samvad-hq/samvad-reader/internal/reader"
)

var (
	flagOffline  bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "reader",
	Short:         "Offline-capable news reader",
	Long:          "reader fetches news through a rate-limited queue and falls back to cached, saved and merged pages when the network is unavailable.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "treat the network as unavailable")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(serveShellCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reader: %s\n", describe(err))
		os.Exit(1)
	}
}

// loadConfig reads config and starts the logger. The returned func flushes it.
func loadConfig() (*config.Config, logger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	log, err := logger.Init(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, func() { _ = logger.Close() }, nil
}

// withReader builds the runtime, runs fn and closes the runtime, letting
// background cache writes finish first.
func withReader(cmd *cobra.Command, fn func(ctx context.Context, rd *app.Reader) error) error {
	cfg, log, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rd, err := app.NewReader(ctx, cfg, log, app.Options{ForceOffline: flagOffline})
	if err != nil {
		return err
	}
	runErr := fn(ctx, rd)
	if err := rd.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe renders err for the terminal, adding request detail where the
// error carries it.
func describe(err error) string {
	var exhausted *reader.ExhaustionError
	if errors.As(err, &exhausted) {
		return exhausted.Detail()
	}
	return err.Error()
}
