package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-reader/internal/app"
	"github.com/samvad-hq/samvad-reader/internal/config"
	"github.com/samvad-hq/samvad-reader/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "prefetcher start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("prefetcher starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rd, err := app.NewReader(ctx, cfg, log, app.Options{})
	if err != nil {
		logger.ErrorObj("failed to initialize reader runtime", "error", err)
		return err
	}
	defer rd.Close()

	prefetcher, err := app.NewPrefetcher(cfg, rd, log)
	if err != nil {
		logger.ErrorObj("failed to initialize prefetcher", "error", err)
		return err
	}

	if err := prefetcher.Run(ctx); err != nil {
		return fmt.Errorf("prefetcher run: %w", err)
	}
	return nil
}
