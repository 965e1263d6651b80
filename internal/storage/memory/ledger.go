// Package memory holds process-local stores: an in-memory ledger and
// snapshot store, and a CSV-file labeled corpus.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"previsioni/internal/core"
)

// Ledger is an in-memory ledger and forecast snapshot store.
type Ledger struct {
	mu        sync.Mutex
	txs       map[string][]core.Transaction
	snapshots map[string][]core.ForecastSnapshot
	nextID    int64
	nextSnap  int64
}

func NewLedger() *Ledger {
	return &Ledger{
		txs:       map[string][]core.Transaction{},
		snapshots: map[string][]core.ForecastSnapshot{},
	}
}

// AddTransaction implements ports.LedgerWriter
func (l *Ledger) AddTransaction(_ context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.txs[tx.OwnerID] = append(l.txs[tx.OwnerID], tx)
	return l.nextID, nil
}

// ListTransactions implements ports.LedgerReader
func (l *Ledger) ListTransactions(_ context.Context, ownerID string, limit int) ([]core.Transaction, error) {
	l.mu.Lock()
	out := append([]core.Transaction(nil), l.txs[ownerID]...)
	l.mu.Unlock()

	// Stable keeps insertion order for same-day entries.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ListOwners implements ports.OwnerLister
func (l *Ledger) ListOwners(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owners := make([]string, 0, len(l.txs))
	for owner := range l.txs {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// SaveSnapshot implements ports.ForecastSnapshotStore
func (l *Ledger) SaveSnapshot(_ context.Context, snap core.ForecastSnapshot) (int64, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSnap++
	snap.ID = l.nextSnap
	l.snapshots[snap.OwnerID] = append(l.snapshots[snap.OwnerID], snap)
	return snap.ID, nil
}

// LatestSnapshot implements ports.ForecastSnapshotStore
func (l *Ledger) LatestSnapshot(_ context.Context, ownerID string) (core.ForecastSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snaps := l.snapshots[ownerID]
	if len(snaps) == 0 {
		return core.ForecastSnapshot{}, core.ErrSnapshotNotFound
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	return latest, nil
}

// StaleOwners implements ports.ForecastSnapshotStore
func (l *Ledger) StaleOwners(_ context.Context, cutoff time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for owner := range l.txs {
		fresh := false
		for _, s := range l.snapshots[owner] {
			if !s.CreatedAt.Before(cutoff) {
				fresh = true
				break
			}
		}
		if !fresh {
			out = append(out, owner)
		}
	}
	sort.Strings(out)
	return out, nil
}
