package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"previsioni/internal/core"
)

type dayPayload struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// EncodeSnapshot serialises the per-day and per-category parts of a snapshot as JSON.
func EncodeSnapshot(snap core.ForecastSnapshot) (perDay, perCategory string, err error) {
	days := make([]dayPayload, len(snap.PerDay))
	for i, d := range snap.PerDay {
		days[i] = dayPayload{Date: d.Date.String(), Amount: d.Amount}
	}
	cats := make(map[string]string, len(snap.PerCategoryTotals))
	for name, m := range snap.PerCategoryTotals {
		cats[name] = m.String()
	}

	b, err := json.Marshal(days)
	if err != nil {
		return "", "", fmt.Errorf("encode per day: %w", err)
	}
	c, err := json.Marshal(cats)
	if err != nil {
		return "", "", fmt.Errorf("encode per category: %w", err)
	}
	return string(b), string(c), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(snap *core.ForecastSnapshot, perDay, perCategory string) error {
	var days []dayPayload
	if err := json.Unmarshal([]byte(perDay), &days); err != nil {
		return fmt.Errorf("decode per day: %w", err)
	}
	var cats map[string]string
	if err := json.Unmarshal([]byte(perCategory), &cats); err != nil {
		return fmt.Errorf("decode per category: %w", err)
	}

	snap.PerDay = make([]core.DailyAmount, len(days))
	for i, d := range days {
		date, err := core.ParseDate(d.Date)
		if err != nil {
			return fmt.Errorf("decode date %q: %w", d.Date, err)
		}
		snap.PerDay[i] = core.DailyAmount{Date: date, Amount: d.Amount}
	}
	snap.PerCategoryTotals = make(map[string]core.Money, len(cats))
	for name, s := range cats {
		m, err := core.ParseMoney(s)
		if err != nil {
			return fmt.Errorf("decode amount for %s: %w", name, err)
		}
		snap.PerCategoryTotals[name] = m
	}
	return nil
}

// SaveSnapshot implements ports.ForecastSnapshotStore
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap core.ForecastSnapshot) (int64, error) {
	perDay, perCategory, err := EncodeSnapshot(snap)
	if err != nil {
		return 0, err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO forecast_snapshots (owner_id, model, fit_error, horizon_total, per_day, per_category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.OwnerID, snap.Model, snap.FitError, snap.HorizonTotal, perDay, perCategory, formatTimestamp(snap.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestSnapshot implements ports.ForecastSnapshotStore
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, ownerID string) (core.ForecastSnapshot, error) {
	var (
		snap                core.ForecastSnapshot
		perDay, perCategory string
		createdAt           string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, model, fit_error, horizon_total, per_day, per_category, created_at
		 FROM forecast_snapshots WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, ownerID).
		Scan(&snap.ID, &snap.OwnerID, &snap.Model, &snap.FitError, &snap.HorizonTotal, &perDay, &perCategory, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ForecastSnapshot{}, core.ErrSnapshotNotFound
	}
	if err != nil {
		return core.ForecastSnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.CreatedAt = parseTimestamp(createdAt)
	if err := DecodeSnapshot(&snap, perDay, perCategory); err != nil {
		return core.ForecastSnapshot{}, err
	}
	return snap, nil
}

// StaleOwners implements ports.ForecastSnapshotStore
func (r *SQLiteRepository) StaleOwners(ctx context.Context, cutoff time.Time) ([]string, error) {
	return queryStrings(ctx, r.db,
		`SELECT t.owner_id FROM (SELECT DISTINCT owner_id FROM transactions) t
		 LEFT JOIN (SELECT owner_id, MAX(created_at) AS last FROM forecast_snapshots GROUP BY owner_id) s
		   ON s.owner_id = t.owner_id
		 WHERE s.last IS NULL OR s.last < ?
		 ORDER BY t.owner_id`, formatTimestamp(cutoff))
}
