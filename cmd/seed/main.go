package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"previsioni/internal/backend"
	"previsioni/internal/cli"
	"previsioni/internal/config"
	"previsioni/internal/log"
	"previsioni/internal/ports"
	"previsioni/internal/storage/memory"
	"previsioni/internal/textnorm"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("seed")

	corpusPath := flag.String("corpus", "", "dataset.csv to import into the corpus store")
	txPath := flag.String("transactions", "", "transactions CSV (date,amount,category,description[,owner_id]) to import into the ledger")
	owner := flag.String("owner", "default", "owner for transactions without owner_id")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	if *corpusPath == "" && *txPath == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one of --corpus or --transactions is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == string(backend.MemoryBackend) && *txPath != "" {
		logger.Error("The memory backend does not persist transactions; set DATA_BACKEND=sqlite or postgres")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stores := cli.OpenBackend(ctx, cfg, logger)
	defer stores.Close()

	if *corpusPath != "" {
		n, skipped, err := importCorpus(ctx, cfg, stores.Corpus, *corpusPath, cli.NewNormalizer(cfg, logger))
		if err != nil {
			logger.Error("Corpus import failed", log.FieldError, err, "imported", n)
			os.Exit(1)
		}
		logger.Info("Corpus imported", "path", *corpusPath, "examples", n, "skipped", skipped)
	}

	if *txPath != "" {
		n, err := cli.SeedLedgerFromFile(ctx, stores.Store, *txPath, *owner)
		if err != nil {
			logger.Error("Transaction import failed", log.FieldError, err, "imported", n)
			os.Exit(1)
		}
		if n == 0 {
			logger.Warn("No transactions imported", "path", *txPath)
		}
		logger.Info("Transactions imported", "path", *txPath, "transactions", n)
	}
}

// importCorpus copies the valid rows of a dataset.csv into the configured
// corpus, normalizing rows that have no clean_description.
func importCorpus(ctx context.Context, cfg *config.Config, dst ports.CorpusStore, path string, norm *textnorm.Normalizer) (imported, skipped int, err error) {
	if same, _ := sameFile(path, cfg.CorpusPath()); same && cfg.DataBackend == string(backend.MemoryBackend) {
		return 0, 0, fmt.Errorf("%s is already the active corpus", path)
	}
	examples, err := memory.NewCSVCorpus(path).ListExamples(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, ex := range examples {
		if ex.NormalizedDescription == "" {
			ex.NormalizedDescription = norm.Normalize(ex.Description)
		}
		if err := ex.Validate(); err != nil {
			skipped++
			continue
		}
		if _, err := dst.AppendExample(ctx, ex); err != nil {
			return imported, skipped, fmt.Errorf("row %d: %w", ex.ID, err)
		}
		imported++
	}
	return imported, skipped, nil
}

func sameFile(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
