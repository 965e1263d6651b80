// Package postgres stores the ledger, labeled corpus and forecast snapshots in PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"previsioni/internal/core"
	"previsioni/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a PostgreSQL-backed ledger, corpus and snapshot store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection and applies migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded schema through a database/sql view of the pool.
func RunMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AddTransaction implements ports.LedgerWriter
func (s *Store) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (owner_id, amount, date, description, category)
		 VALUES ($1, $2::numeric, $3, $4, $5) RETURNING id`,
		tx.OwnerID, tx.Amount.String(), tx.Date.Time, tx.Description, tx.Category).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// ListTransactions implements ports.LedgerReader
func (s *Store) ListTransactions(ctx context.Context, ownerID string, limit int) ([]core.Transaction, error) {
	query := `SELECT owner_id, amount::text, date, description, category
		FROM transactions WHERE owner_id = $1 ORDER BY date DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w: %v", core.ErrLedgerUnavailable, err)
	}
	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Transaction, error) {
		var (
			tx     core.Transaction
			amount string
			date   time.Time
		)
		if err := row.Scan(&tx.OwnerID, &amount, &date, &tx.Description, &tx.Category); err != nil {
			return core.Transaction{}, err
		}
		m, err := core.ParseMoney(amount)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("amount %q: %w", amount, err)
		}
		tx.Amount = m
		tx.Date = core.DateOf(date)
		return tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}

	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

// ListOwners implements ports.OwnerLister
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT owner_id FROM transactions ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListExamples implements ports.CorpusStore
func (s *Store) ListExamples(ctx context.Context) ([]core.LabeledExample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, description, normalized_description, category, created_at FROM labeled_examples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list examples: %w: %v", core.ErrCorpusUnavailable, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.LabeledExample, error) {
		var ex core.LabeledExample
		err := row.Scan(&ex.ID, &ex.Description, &ex.NormalizedDescription, &ex.Category, &ex.CreatedAt)
		return ex, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan examples: %w: %v", core.ErrCorpusMalformed, err)
	}
	return out, nil
}

// AppendExample implements ports.CorpusStore
func (s *Store) AppendExample(ctx context.Context, ex core.LabeledExample) (core.LabeledExample, error) {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO labeled_examples (description, normalized_description, category, created_at)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			ex.Description, ex.NormalizedDescription, ex.Category, ex.CreatedAt).Scan(&ex.ID)
	})
	if err != nil {
		return core.LabeledExample{}, fmt.Errorf("insert example: %w", err)
	}
	return ex, nil
}

// Version implements ports.CorpusStore
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM labeled_examples`).Scan(&v); err != nil {
		return 0, fmt.Errorf("corpus version: %w: %v", core.ErrCorpusUnavailable, err)
	}
	return v, nil
}

// SaveSnapshot implements ports.ForecastSnapshotStore
func (s *Store) SaveSnapshot(ctx context.Context, snap core.ForecastSnapshot) (int64, error) {
	perDay, perCategory, err := storage.EncodeSnapshot(snap)
	if err != nil {
		return 0, err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO forecast_snapshots (owner_id, model, fit_error, horizon_total, per_day, per_category, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7) RETURNING id`,
		snap.OwnerID, snap.Model, snap.FitError, snap.HorizonTotal, perDay, perCategory, snap.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot implements ports.ForecastSnapshotStore
func (s *Store) LatestSnapshot(ctx context.Context, ownerID string) (core.ForecastSnapshot, error) {
	var (
		snap                core.ForecastSnapshot
		perDay, perCategory string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, model, fit_error, horizon_total, per_day::text, per_category::text, created_at
		 FROM forecast_snapshots WHERE owner_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, ownerID).
		Scan(&snap.ID, &snap.OwnerID, &snap.Model, &snap.FitError, &snap.HorizonTotal, &perDay, &perCategory, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ForecastSnapshot{}, core.ErrSnapshotNotFound
	}
	if err != nil {
		return core.ForecastSnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	if err := storage.DecodeSnapshot(&snap, perDay, perCategory); err != nil {
		return core.ForecastSnapshot{}, err
	}
	return snap, nil
}

// StaleOwners implements ports.ForecastSnapshotStore
func (s *Store) StaleOwners(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.owner_id FROM (SELECT DISTINCT owner_id FROM transactions) t
		 LEFT JOIN (SELECT owner_id, MAX(created_at) AS last FROM forecast_snapshots GROUP BY owner_id) s
		   ON s.owner_id = t.owner_id
		 WHERE s.last IS NULL OR s.last < $1
		 ORDER BY t.owner_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale owners: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
