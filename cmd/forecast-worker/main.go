package main

import (
	"context"
	"os"
	"time"

	"previsioni/internal/cli"
	"previsioni/internal/log"
	"previsioni/internal/services"
	"previsioni/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting forecast-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	stores := cli.OpenBackend(context.Background(), cfg, logger)

	amqpClient, err := cli.NewAMQPClient(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	forecastSvc := services.NewForecastService(stores.Store, services.ForecastConfig{
		Options:      cli.ForecastOptions(cfg),
		HistoryLimit: cfg.ForecastHistoryLimit,
		Snapshots:    stores.Store,
		Exporter:     cli.NewExporter(context.Background(), cfg, logger),
		Logger:       logger,
	})

	w := worker.NewForecastWorker(forecastSvc, worker.Config{
		SweepInterval: cfg.RefreshInterval,
		MaxAge:        cfg.SnapshotMaxAge,
		BatchSize:     cfg.RefreshBatchSize,
		Concurrency:   cfg.WorkerConcurrency,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := stores.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	})

	// Without a broker the worker only sweeps stale owners.
	var consumer worker.Consumer
	if amqpClient != nil {
		consumer = amqpClient
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	<-done
	logger.Info("Worker shutdown complete")
}
