package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"previsioni/internal/backend"
	"previsioni/internal/cache"
	"previsioni/internal/cli"
	apphttp "previsioni/internal/http"
	"previsioni/internal/log"
	"previsioni/internal/services"
)

// defaultOwner is assigned to seeded transactions without an owner_id column.
const defaultOwner = "default"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx := context.Background()
	stores := cli.OpenBackend(startCtx, cfg, logger)

	// The memory ledger starts empty; seed it from DATA_DIR when an export is present.
	if cfg.DataBackend == string(backend.MemoryBackend) {
		path := filepath.Join(cfg.DataDir, "transactions.csv")
		n, err := cli.SeedLedgerFromFile(startCtx, stores.Store, path, defaultOwner)
		if err != nil {
			logger.Warn("Failed to seed memory ledger", log.FieldError, err, "path", path)
		} else if n > 0 {
			logger.Info("Seeded memory ledger", "path", path, "transactions", n)
		}
	}

	classifierSvc := services.NewClassifierService(stores.Corpus, services.ClassifierConfig{
		Options:    cli.ClassifierOptions(cfg),
		CacheSize:  cfg.ModelCacheSize,
		CacheTTL:   cfg.ModelCacheTTL,
		Normalizer: cli.NewNormalizer(cfg, logger),
		Logger:     logger,
	})

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache))
	caches.Register(classifierSvc.Models())
	caches.Start(startCtx, time.Minute)

	checks := map[string]apphttp.CheckFunc{"store": stores.Ping}

	fcfg := services.ForecastConfig{
		Options:      cli.ForecastOptions(cfg),
		HistoryLimit: cfg.ForecastHistoryLimit,
		Snapshots:    stores.Store,
		Exporter:     cli.NewExporter(startCtx, cfg, logger),
		Logger:       logger,
	}
	amqpClient, err := cli.NewAMQPClient(cfg, logger)
	if err != nil {
		// Refreshes run inline for the life of this process.
		logger.Warn("AMQP unavailable, refreshes will run inline", log.FieldError, err)
	}
	if amqpClient != nil {
		fcfg.Publisher = amqpClient
		checks["amqp"] = func(context.Context) error { return amqpClient.Ping() }
	}
	forecastSvc := services.NewForecastService(stores.Store, fcfg)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Classifier:     classifierSvc,
		Forecaster:     forecastSvc,
		Checks:         checks,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		Logger:         logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := stores.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	})

	logger.Info("Starting previsioni server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
