// Package main runs the source crawler daemon. It polls due sources on
// a fixed interval and publishes fetched items for the ingest pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/asapdigest/central-command/engine/crawler"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/config"
	"github.com/asapdigest/central-command/pkg/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("crawler exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	reg := metrics.New()
	reg.ServeAsync(cfg.HTTP.MetricsPort)

	c := crawler.New(crawler.Options{
		UserAgent: cfg.Crawler.UserAgent,
		FetchRate: rate.Limit(cfg.Crawler.FetchRate),
		Burst:     cfg.Crawler.FetchBurst,
	}, logger)

	sched := crawler.NewScheduler(c, st, nc,
		cfg.Crawler.ScanInterval, cfg.Crawler.Workers, reg, logger)

	logger.Info("crawler starting",
		"scan_interval", cfg.Crawler.ScanInterval,
		"workers", cfg.Crawler.Workers)
	return sched.Run(ctx)
}
