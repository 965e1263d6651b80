package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"previsioni/internal/amqp"
	"previsioni/internal/core"
	"previsioni/internal/services"
	"previsioni/internal/storage/memory"
)

type fakeRefresher struct {
	mu        sync.Mutex
	refreshed []string
	errs      map[string]error
	stale     []string
}

func (f *fakeRefresher) Refresh(_ context.Context, ownerID string) (core.ForecastSnapshot, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[ownerID]; err != nil {
		return core.ForecastSnapshot{}, "", err
	}
	f.refreshed = append(f.refreshed, ownerID)
	return core.ForecastSnapshot{OwnerID: ownerID, Model: "holt"}, "", nil
}

func (f *fakeRefresher) StaleOwners(context.Context, time.Duration) ([]string, error) {
	return f.stale, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshed)
}

func TestHandleRefreshMessage(t *testing.T) {
	r := &fakeRefresher{errs: map[string]error{
		"short": &core.InsufficientDataError{Required: 10, Available: 3},
		"down":  core.ErrLedgerUnavailable,
	}}
	w := NewForecastWorker(r, Config{}, nil)
	ctx := context.Background()

	tests := []struct {
		owner   string
		wantErr bool
	}{
		{"alice", false},
		{"short", false},
		{"down", true},
	}
	for _, tt := range tests {
		err := w.HandleRefreshMessage(ctx, amqp.NewForecastRefreshMessage(tt.owner, amqp.ReasonRequested))
		if (err != nil) != tt.wantErr {
			t.Errorf("owner %s: err = %v, wantErr %v", tt.owner, err, tt.wantErr)
		}
	}
	if r.count() != 1 {
		t.Fatalf("expected one refresh, got %v", r.refreshed)
	}
}

type quotaExporter struct{ calls int }

func (e *quotaExporter) ExportForecast(context.Context, core.ForecastSnapshot) (string, error) {
	e.calls++
	return "", errors.New("sheets quota exceeded")
}

func TestHandleRefreshMessageAcksWhenOnlyExportFails(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	for i := 0; i < 14; i++ {
		tx := core.Transaction{
			OwnerID:  "alice",
			Amount:   core.NewMoneyFromCents(2000),
			Date:     core.NewDate(2024, 1, 1+i),
			Category: "food",
		}
		if _, err := ledger.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("add transaction: %v", err)
		}
	}
	exporter := &quotaExporter{}
	svc := services.NewForecastService(ledger, services.ForecastConfig{Snapshots: ledger, Exporter: exporter})
	w := NewForecastWorker(svc, Config{}, nil)

	for i := 0; i < 3; i++ {
		if err := w.HandleRefreshMessage(ctx, amqp.NewForecastRefreshMessage("alice", amqp.ReasonRequested)); err != nil {
			t.Fatalf("delivery %d: err = %v, want nil so the message is acked", i+1, err)
		}
	}
	if exporter.calls != 3 {
		t.Fatalf("expected one export attempt per delivery, got %d", exporter.calls)
	}
	if _, err := ledger.LatestSnapshot(ctx, "alice"); err != nil {
		t.Fatalf("snapshot should be stored despite the export failure: %v", err)
	}
}

func TestSweepStaleRespectsBatchSize(t *testing.T) {
	r := &fakeRefresher{
		stale: []string{"a", "b", "c", "d"},
		errs:  map[string]error{"b": errors.New("sheets quota")},
	}
	w := NewForecastWorker(r, Config{BatchSize: 3, Concurrency: 2}, nil)

	n, err := w.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 successful refreshes, got %d", n)
	}
	for _, owner := range r.refreshed {
		if owner == "d" {
			t.Fatalf("owner beyond the batch was refreshed")
		}
	}
}

type fakeConsumer struct {
	msgs []*amqp.ForecastRefreshMessage
}

func (f *fakeConsumer) ConsumeForecastRefresh(ctx context.Context, handler amqp.Handler) error {
	for _, m := range f.msgs {
		handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunConsumesAndStops(t *testing.T) {
	r := &fakeRefresher{}
	consumer := &fakeConsumer{msgs: []*amqp.ForecastRefreshMessage{
		amqp.NewForecastRefreshMessage("alice", amqp.ReasonRequested),
		amqp.NewForecastRefreshMessage("bob", amqp.ReasonRequested),
	}}
	w := NewForecastWorker(r, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if r.count() != 2 {
		t.Fatalf("expected 2 refreshes, got %d", r.count())
	}
}

func TestRunSweepsOnStart(t *testing.T) {
	r := &fakeRefresher{stale: []string{"carol"}}
	w := NewForecastWorker(r, Config{SweepInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.count() != 1 {
		t.Fatalf("expected the initial sweep to refresh carol")
	}
}
