// Package backend builds the ledger, snapshot and corpus stores selected by
// configuration.
package backend

import (
	"context"
	"fmt"

	"previsioni/internal/config"
	"previsioni/internal/ports"
)

// Store is implemented by every ledger backend.
type Store interface {
	ports.LedgerReader
	ports.LedgerWriter
	ports.OwnerLister
	ports.ForecastSnapshotStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the opened stores. Ping reports readiness; Cleanup
// releases connections and may be nil.
type BackendResult struct {
	Store   Store
	Corpus  ports.CorpusStore
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	// CorpusCSVPath selects the CSV corpus. It is required for the memory
	// backend; the SQL backends use their own table unless it is set.
	CorpusCSVPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// FromAppConfig converts the application config to backend config. Only the
// memory backend defaults to the CSV corpus.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	bt := BackendType(appConfig.DataBackend)
	if !bt.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	cfg := Config{
		Type:          bt,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DatabaseURL:   appConfig.DatabaseURL,
		CorpusCSVPath: appConfig.CorpusCSVPath,
	}
	if bt == MemoryBackend {
		cfg.CorpusCSVPath = appConfig.CorpusPath()
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	switch c.Type {
	case MemoryBackend:
		if c.CorpusCSVPath == "" {
			return fmt.Errorf("corpus CSV path is required for memory backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	default:
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{MemoryBackend.String(), SQLiteBackend.String(), PostgresBackend.String()}
}
