// Package cli provides common CLI initialization utilities shared by
// cmd/previsioni, cmd/forecast-worker and cmd/seed.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"previsioni/internal/amqp"
	"previsioni/internal/backend"
	"previsioni/internal/classifier"
	"previsioni/internal/config"
	"previsioni/internal/core"
	"previsioni/internal/forecast"
	"previsioni/internal/log"
	"previsioni/internal/ports"
	gsheet "previsioni/internal/sheets/google"
	"previsioni/internal/storage/memory"
	"previsioni/internal/textnorm"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger creates the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the slog default. It runs before the config is loaded so config
// errors are logged in the chosen format.
func SetupLogger(component string) *log.Logger {
	logger := log.NewWithLevel(component, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitDataDir creates the directories holding the SQLite file and the CSV
// corpus.
func InitDataDir(cfg *config.Config) error {
	dirs := []string{cfg.DataDir, filepath.Dir(cfg.CorpusPath())}
	if cfg.DataBackend == string(backend.SQLiteBackend) {
		dirs = append(dirs, filepath.Dir(cfg.SQLiteDBPath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// OpenBackend creates the configured stores. Exits the process on failure.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) *backend.BackendResult {
	if err := InitDataDir(cfg); err != nil {
		logger.Error("Failed to prepare data directory", log.FieldError, err, "data_dir", cfg.DataDir)
		os.Exit(1)
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// NewNormalizer loads STOPWORDS_FILE when set, falling back to the built-in list.
func NewNormalizer(cfg *config.Config, logger *log.Logger) *textnorm.Normalizer {
	if cfg.StopwordsFile == "" {
		return textnorm.New(textnorm.DefaultStopwords(), logger)
	}
	return textnorm.FromFile(cfg.StopwordsFile, logger)
}

// ClassifierOptions maps configuration to training options.
func ClassifierOptions(cfg *config.Config) classifier.Options {
	opts := classifier.DefaultOptions()
	opts.Algorithm = classifier.ParseAlgorithm(cfg.ClassifierAlgorithm)
	if cfg.ClassifierTrees > 0 {
		opts.Trees = cfg.ClassifierTrees
	}
	return opts
}

// ForecastOptions maps configuration to forecaster options.
func ForecastOptions(cfg *config.Config) forecast.Options {
	opts := forecast.DefaultOptions()
	if cfg.ForecastHorizon > 0 {
		opts.Horizon = cfg.ForecastHorizon
	}
	if cfg.ForecastMinTransactions > 0 {
		opts.MinTransactions = cfg.ForecastMinTransactions
	}
	return opts
}

// NewExporter returns the Google Sheets exporter, or nil when no spreadsheet
// is configured or the credentials cannot be loaded.
func NewExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) ports.ForecastExporter {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleForecastSheetName)
	if err != nil {
		logger.Warn("Google Sheets export disabled", log.FieldError, err)
		return nil
	}
	logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client
}

// NewAMQPClient connects to the broker, or returns nil when AMQP_URL is empty.
func NewAMQPClient(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	logger.Info("AMQP client connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// SeedLedgerFromFile imports a transactions CSV into the ledger. A missing
// file is not an error and imports nothing.
func SeedLedgerFromFile(ctx context.Context, w ports.LedgerWriter, path, defaultOwner string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	txs, err := memory.ReadTransactionsCSV(f, defaultOwner)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return SeedLedger(ctx, w, txs)
}

// SeedLedger writes transactions in order and stops at the first failure.
func SeedLedger(ctx context.Context, w ports.LedgerWriter, txs []core.Transaction) (int, error) {
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := w.AddTransaction(ctx, tx); err != nil {
			return i, fmt.Errorf("add transaction %d: %w", i+1, err)
		}
	}
	return len(txs), nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when cleanup is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}
