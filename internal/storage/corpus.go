package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"previsioni/internal/core"
)

// ListExamples implements ports.CorpusStore
func (r *SQLiteRepository) ListExamples(ctx context.Context) ([]core.LabeledExample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, description, normalized_description, category, created_at FROM labeled_examples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list examples: %w: %v", core.ErrCorpusUnavailable, err)
	}
	defer rows.Close()

	var out []core.LabeledExample
	for rows.Next() {
		var (
			ex        core.LabeledExample
			createdAt string
		)
		if err := rows.Scan(&ex.ID, &ex.Description, &ex.NormalizedDescription, &ex.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan example: %w: %v", core.ErrCorpusMalformed, err)
		}
		ex.CreatedAt = parseTimestamp(createdAt)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate examples: %w", err)
	}
	return out, nil
}

// AppendExample implements ports.CorpusStore. The row id doubles as the new corpus version.
func (r *SQLiteRepository) AppendExample(ctx context.Context, ex core.LabeledExample) (core.LabeledExample, error) {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.LabeledExample{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO labeled_examples (description, normalized_description, category, created_at) VALUES (?, ?, ?, ?)`,
		ex.Description, ex.NormalizedDescription, ex.Category, formatTimestamp(ex.CreatedAt))
	if err != nil {
		return core.LabeledExample{}, fmt.Errorf("insert example: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.LabeledExample{}, fmt.Errorf("example id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.LabeledExample{}, fmt.Errorf("commit example: %w", err)
	}

	ex.ID = id
	return ex, nil
}

// Version implements ports.CorpusStore
func (r *SQLiteRepository) Version(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(id) FROM labeled_examples`).Scan(&v); err != nil {
		return 0, fmt.Errorf("corpus version: %w: %v", core.ErrCorpusUnavailable, err)
	}
	return v.Int64, nil
}
