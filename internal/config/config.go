// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends accepted in DATA_BACKEND.
var validBackends = []string{"memory", "sqlite", "postgres"}

type Config struct {
	// HTTP Server
	Port           string
	RequestTimeout time.Duration
	RateLimit      int

	// Storage
	DataBackend   string
	SQLiteDBPath  string
	DatabaseURL   string
	DataDir       string
	CorpusCSVPath string

	// Classifier
	StopwordsFile       string
	ClassifierAlgorithm string
	ClassifierTrees     int
	ModelCacheSize      int
	ModelCacheTTL       time.Duration

	// Forecaster
	ForecastHorizon         int
	ForecastMinTransactions int
	ForecastHistoryLimit    int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID     string
	GoogleForecastSheetName string

	// Worker
	RefreshInterval   time.Duration
	SnapshotMaxAge    time.Duration
	RefreshBatchSize  int
	WorkerConcurrency int

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimit:      getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DataBackend:   getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/previsioni.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DataDir:       getEnv("DATA_DIR", "data"),
		CorpusCSVPath: getEnv("CORPUS_CSV_PATH", ""),

		StopwordsFile:       getEnv("STOPWORDS_FILE", ""),
		ClassifierAlgorithm: getEnv("CLASSIFIER_ALGORITHM", "forest"),
		ClassifierTrees:     getEnvInt("CLASSIFIER_TREES", 100),
		ModelCacheSize:      getEnvInt("MODEL_CACHE_SIZE", 2),
		ModelCacheTTL:       getEnvDuration("MODEL_CACHE_TTL", 0),

		ForecastHorizon:         getEnvInt("FORECAST_HORIZON", 30),
		ForecastMinTransactions: getEnvInt("FORECAST_MIN_TRANSACTIONS", 10),
		ForecastHistoryLimit:    getEnvInt("FORECAST_HISTORY_LIMIT", 180),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "previsioni"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "forecast_refresh"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleForecastSheetName: getEnv("GOOGLE_FORECAST_SHEET_NAME", "Forecast"),

		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),
		SnapshotMaxAge:    getEnvDuration("SNAPSHOT_MAX_AGE", 24*time.Hour),
		RefreshBatchSize:  getEnvInt("REFRESH_BATCH_SIZE", 50),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// CorpusPath returns the CSV corpus file: CORPUS_CSV_PATH, or dataset.csv
// under DATA_DIR.
func (c *Config) CorpusPath() string {
	if c.CorpusCSVPath != "" {
		return c.CorpusCSVPath
	}
	return filepath.Join(c.DataDir, "dataset.csv")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: must be a postgres:// or postgresql:// URL")
		}
	}

	switch strings.ToLower(c.ClassifierAlgorithm) {
	case "forest", "bayes":
	default:
		errors = append(errors, fmt.Sprintf("invalid classifier algorithm '%s': must be forest or bayes", c.ClassifierAlgorithm))
	}
	if c.ClassifierTrees < 1 || c.ClassifierTrees > 1000 {
		errors = append(errors, fmt.Sprintf("invalid classifier trees %d: must be between 1 and 1000", c.ClassifierTrees))
	}
	if c.ModelCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid model cache size %d: must be at least 1", c.ModelCacheSize))
	}
	if c.ModelCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid model cache ttl %v: must not be negative", c.ModelCacheTTL))
	}

	if c.ForecastHorizon < 1 || c.ForecastHorizon > 365 {
		errors = append(errors, fmt.Sprintf("invalid forecast horizon %d: must be between 1 and 365", c.ForecastHorizon))
	}
	if c.ForecastMinTransactions < 1 {
		errors = append(errors, fmt.Sprintf("invalid forecast min transactions %d: must be at least 1", c.ForecastMinTransactions))
	}
	if c.ForecastHistoryLimit < c.ForecastMinTransactions {
		errors = append(errors, fmt.Sprintf("invalid forecast history limit %d: must be at least the minimum of %d transactions",
			c.ForecastHistoryLimit, c.ForecastMinTransactions))
	}

	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.GoogleForecastSheetName) == "" {
		errors = append(errors, "Google forecast sheet name cannot be empty when a spreadsheet is configured")
	}

	if c.RefreshInterval < time.Minute && c.RefreshInterval != 0 {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be 0 (disabled) or at least 1 minute", c.RefreshInterval))
	}
	if c.SnapshotMaxAge < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid snapshot max age %v: must be at least 1 minute", c.SnapshotMaxAge))
	}
	if c.RefreshBatchSize < 1 || c.RefreshBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid refresh batch size %d: must be between 1 and 1000", c.RefreshBatchSize))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if c.WorkerConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be at least 1", c.WorkerConcurrency))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
