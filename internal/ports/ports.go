package ports

import (
	"context"
	"time"

	"previsioni/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerReader returns an owner's most recent transactions in ascending date
	// order. A non-positive limit returns all of them.
	LedgerReader interface {
		ListTransactions(ctx context.Context, ownerID string, limit int) ([]core.Transaction, error)
	}

	// LedgerWriter records transactions. Used by import tooling only.
	LedgerWriter interface {
		AddTransaction(ctx context.Context, tx core.Transaction) (int64, error)
	}

	// OwnerLister enumerates owners that have ledger data.
	OwnerLister interface {
		ListOwners(ctx context.Context) ([]string, error)
	}

	// CorpusStore is the append-only labeled training corpus. AppendExample
	// must be atomic with respect to concurrent appends and bump Version.
	CorpusStore interface {
		ListExamples(ctx context.Context) ([]core.LabeledExample, error)
		AppendExample(ctx context.Context, ex core.LabeledExample) (core.LabeledExample, error)
		Version(ctx context.Context) (int64, error)
	}

	// ForecastExporter publishes a forecast to an external destination and
	// returns a reference to where it was written.
	ForecastExporter interface {
		ExportForecast(ctx context.Context, snap core.ForecastSnapshot) (ref string, err error)
	}

	// ForecastSnapshotStore persists computed forecasts.
	ForecastSnapshotStore interface {
		SaveSnapshot(ctx context.Context, snap core.ForecastSnapshot) (int64, error)
		// LatestSnapshot returns core.ErrSnapshotNotFound when the owner has none.
		LatestSnapshot(ctx context.Context, ownerID string) (core.ForecastSnapshot, error)
		// StaleOwners lists ledger owners whose latest snapshot is older than
		// cutoff, or who have none.
		StaleOwners(ctx context.Context, cutoff time.Time) ([]string, error)
	}
)
