// Package main runs the ingest worker. It consumes fetched items from
// NATS and drives them through validation, normalisation, dedup,
// scoring, and storage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/asapdigest/central-command/engine/process"
	"github.com/asapdigest/central-command/engine/quality"
	"github.com/asapdigest/central-command/engine/semantic"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/config"
	"github.com/asapdigest/central-command/pkg/metrics"
	"github.com/asapdigest/central-command/pkg/ollama"
)

// embedDims matches the default embedding model output width.
const embedDims = 768

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("ingest exited with error", "err", err)
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

	var vectors *semantic.VectorStore
	var embedder *ollama.EmbedClient
	if cfg.Qdrant.Addr != "" && cfg.Ollama.URL != "" {
		vectors, err = semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vectors.Close()
		if err := vectors.EnsureCollection(ctx, embedDims); err != nil {
			return err
		}
		embedder = ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.Model)
	}

	settings := quality.DefaultSettings()
	if err := st.GetOption(ctx, quality.OptionKey, &settings); err == nil {
		if err := settings.Normalize(); err != nil {
			logger.Warn("stored quality settings invalid, using defaults", "err", err)
			settings = quality.DefaultSettings()
		}
	}

	reg := metrics.New()
	reg.ServeAsync(cfg.HTTP.MetricsPort)

	deps := process.Deps{
		Store:    st,
		Scorer:   quality.NewScorer(settings, nil),
		Vectors:  vectors,
		Embedder: embedder,
		Logger:   logger,
	}

	sub, err := process.StartConsumer(nc, deps, reg)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Drain()

	logger.Info("ingest worker started",
		"subject", process.IngestSubject,
		"vectors", vectors != nil)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
