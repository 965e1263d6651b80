package backend

import (
	"context"
	"fmt"

	"previsioni/internal/log"
	"previsioni/internal/ports"
	"previsioni/internal/storage"
	"previsioni/internal/storage/memory"
	"previsioni/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		res, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.CorpusCSVPath != "" && config.Type != MemoryBackend {
		res.Corpus = memory.NewCSVCorpus(config.CorpusCSVPath)
		f.logger.Info("Using CSV corpus", "path", config.CorpusCSVPath)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{
		Store:   repo,
		Corpus:  repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.Open(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
	}
	f.logger.Info("Initialized PostgreSQL backend")
	return &BackendResult{
		Store:   store,
		Corpus:  store,
		Ping:    store.Ping,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	corpus := memory.NewCSVCorpus(config.CorpusCSVPath)
	f.logger.Info("Initialized memory backend", "corpus", config.CorpusCSVPath)
	return &BackendResult{
		Store:  memory.NewLedger(),
		Corpus: corpus,
		Ping: func(ctx context.Context) error {
			_, err := corpus.Version(ctx)
			return err
		},
	}, nil
}

var (
	_ Store             = (*storage.SQLiteRepository)(nil)
	_ Store             = (*postgres.Store)(nil)
	_ Store             = (*memory.Ledger)(nil)
	_ ports.CorpusStore = (*storage.SQLiteRepository)(nil)
	_ ports.CorpusStore = (*postgres.Store)(nil)
	_ ports.CorpusStore = (*memory.CSVCorpus)(nil)
)
