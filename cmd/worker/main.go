package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/dunamismax/pixelfit/internal/logging"
	"github.com/dunamismax/pixelfit/internal/source"
	"github.com/dunamismax/pixelfit/internal/storage"
	"github.com/dunamismax/pixelfit/internal/store"
	"github.com/dunamismax/pixelfit/internal/telemetry"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/dunamismax/pixelfit/internal/webhook"
	"github.com/dunamismax/pixelfit/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	cfg, logger := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown error")
		}
	}()

	if err := transform.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("image runtime startup failed")
	}
	defer transform.Shutdown()

	transformCfg, err := transform.ConfigFrom(cfg.Transform)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid transform config")
	}

	jobStore, closeStore, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("job store unavailable")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("job store close error")
		}
	}()

	var storageClient *storage.Client
	if cfg.Storage.Enabled {
		storageClient, err = storage.NewClient(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("storage client init failed")
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Str("bucket", storageClient.Bucket()).Msg("ensure bucket failed")
		}
	}

	processor, err := worker.NewProcessor(
		cfg.Worker,
		transform.New(transformCfg),
		source.NewFetcher(cfg.Source, logger),
		storageClient,
		cfg.Source.MaxBytes,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("processor init failed")
	}

	srv, err := worker.NewServer(
		logger,
		cfg.Queue,
		cfg.Worker,
		processor,
		webhook.NewClient(cfg.Webhook, logger),
		jobStore,
		jobStore,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker init failed")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Int("max_active_jobs", cfg.Worker.MaxActiveJobs).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Bool("object_storage", storageClient != nil).
		Msg("starting worker")

	if err := srv.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown failed")
	}
}

// loadConfig falls back to a default stderr logger when the configuration
// itself cannot be read.
func loadConfig() (config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(config.LogConfig{}, "worker")
		boot.Fatal().Err(err).Msg("load config")
	}
	return cfg, logging.New(cfg.Log, "worker")
}
