// Package main implements the ASAP content API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asapdigest/central-command/engine/process"
	"github.com/asapdigest/central-command/engine/quality"
	"github.com/asapdigest/central-command/engine/semantic"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/config"
	"github.com/asapdigest/central-command/pkg/metrics"
	"github.com/asapdigest/central-command/pkg/mid"
	"github.com/asapdigest/central-command/pkg/ollama"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
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

	// NATS is only needed for on-demand crawl requests; the API still
	// works without it.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable, crawl requests disabled", "err", err)
		} else {
			defer nc.Close()
		}
	}

	var vectors *semantic.VectorStore
	if cfg.Qdrant.Addr != "" {
		vectors, err = semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			logger.Warn("qdrant unavailable, reindex skips vectors", "err", err)
			vectors = nil
		} else {
			defer vectors.Close()
		}
	}
	var embedder *ollama.EmbedClient
	if cfg.Ollama.URL != "" {
		embedder = ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.Model)
	}

	settings := quality.DefaultSettings()
	if err := st.GetOption(ctx, quality.OptionKey, &settings); err == nil {
		if err := settings.Normalize(); err != nil {
			settings = quality.DefaultSettings()
		}
	}

	reg := metrics.New()
	srvr := &server{
		store: st,
		nc:    nc,
		deps: process.Deps{
			Store:    st,
			Scorer:   quality.NewScorer(settings, nil),
			Vectors:  vectors,
			Embedder: embedder,
			Logger:   logger,
		},
		log: logger,
	}

	keys := make(map[string]mid.Role, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[k.Key] = mid.Role(k.Role)
	}

	handler := mid.Chain(rootMux(srvr, keys, reg),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.OTel("asap-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// rootMux mounts the authenticated API under /asap/v1/ next to the
// unauthenticated health and metrics routes.
func rootMux(srvr *server, keys map[string]mid.Role, reg *metrics.Registry) *http.ServeMux {
	api := http.NewServeMux()
	srvr.routes(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.Handle("/asap/v1/", mid.Chain(api, mid.Auth(keys, denyHandler)))
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}
