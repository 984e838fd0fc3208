package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelfit/internal/api"
	"github.com/dunamismax/pixelfit/internal/cache"
	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/dunamismax/pixelfit/internal/logging"
	"github.com/dunamismax/pixelfit/internal/queue"
	"github.com/dunamismax/pixelfit/internal/ratelimit"
	"github.com/dunamismax/pixelfit/internal/source"
	"github.com/dunamismax/pixelfit/internal/storage"
	"github.com/dunamismax/pixelfit/internal/store"
	"github.com/dunamismax/pixelfit/internal/telemetry"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
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

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue client close error")
		}
	}()

	jobStore, closeStore, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("job store unavailable")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("job store close error")
		}
	}()

	redisClient := redis.NewClient(cfg.Queue.RedisOptions())
	defer redisClient.Close()

	opts := api.Options{
		Logger:       logger,
		Queue:        queueClient,
		Jobs:         jobStore,
		Fetcher:      source.NewFetcher(cfg.Source, logger),
		Renderer:     transform.New(transformCfg),
		Tracer:       otel.Tracer("pixelfit/api"),
		PresignTTL:   cfg.API.PresignTTL,
		UserIDHeader: cfg.RateLimit.UserIDHeader,
	}

	if cfg.Storage.Enabled {
		storageClient, err := storage.NewClient(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("storage client init failed")
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Str("bucket", storageClient.Bucket()).Msg("ensure bucket failed")
		}
		opts.Storage = storageClient
	}

	if cfg.Cache.Enabled {
		renderCache, err := cache.NewRenderCache(redisClient, cfg.Cache)
		if err != nil {
			logger.Fatal().Err(err).Msg("render cache init failed")
		}
		opts.Cache = renderCache
	}

	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit)
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limiter init failed")
		}
		opts.RateLimiter = limiter
	}

	app := api.NewServer(opts)
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// loadConfig falls back to a default stderr logger when the configuration
// itself cannot be read.
func loadConfig() (config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(config.LogConfig{}, "api")
		boot.Fatal().Err(err).Msg("load config")
	}
	return cfg, logging.New(cfg.Log, "api")
}
