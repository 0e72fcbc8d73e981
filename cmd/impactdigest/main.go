package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/impactdigest/internal/app"
	"github.com/deusflow/impactdigest/internal/config"
	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	logger.Init(cfg.LogLevel)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, cleanup, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		return 1
	}
	defer cleanup()

	logger.Info("Starting run", "feeds", len(cfg.Feeds), "backend", cfg.SummaryBackend, "history", cfg.HistoryBackend)
	res := pipeline.Run(ctx)
	logger.Info("Run stats", "stats", metrics.Global.GetStats())

	if res.Outcome == app.Failed {
		return 1
	}
	return 0
}
