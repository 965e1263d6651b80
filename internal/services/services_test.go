package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"previsioni/internal/core"
	"previsioni/internal/storage/memory"
)

// countingCorpus wraps an in-memory corpus and counts full reads.
type countingCorpus struct {
	mu       sync.Mutex
	examples []core.LabeledExample
	lists    atomic.Int32
}

func (c *countingCorpus) ListExamples(context.Context) ([]core.LabeledExample, error) {
	c.lists.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.LabeledExample(nil), c.examples...), nil
}

func (c *countingCorpus) AppendExample(_ context.Context, ex core.LabeledExample) (core.LabeledExample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ex.ID = int64(len(c.examples) + 1)
	c.examples = append(c.examples, ex)
	return ex, nil
}

func (c *countingCorpus) Version(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.examples)), nil
}

func seededCorpus() *countingCorpus {
	c := &countingCorpus{}
	rows := []struct{ desc, norm, cat string }{
		{"Starbucks coffee", "starbucks coffee", "food"},
		{"Coffee shop downtown", "coffee shop downtown", "food"},
		{"Lunch at restaurant", "lunch restaurant", "food"},
		{"Uber ride home", "uber ride home", "transport"},
		{"Train ticket", "train ticket", "transport"},
		{"Bus fare", "bus fare", "transport"},
	}
	for _, r := range rows {
		c.AppendExample(context.Background(), core.LabeledExample{Description: r.desc, NormalizedDescription: r.norm, Category: r.cat})
	}
	return c
}

func TestClassifierServicePredictCachesByVersion(t *testing.T) {
	corpus := seededCorpus()
	svc := NewClassifierService(corpus, ClassifierConfig{})
	ctx := context.Background()

	p, err := svc.Predict(ctx, "Coffee at Starbucks")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.Category != "food" || p.Confidence <= 0 || p.NearestCategory != "food" {
		t.Fatalf("unexpected prediction %+v", p)
	}
	if _, err := svc.Predict(ctx, "uber ride"); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if n := corpus.lists.Load(); n != 1 {
		t.Fatalf("expected one training, got %d", n)
	}

	if _, _, err := svc.AddExample(ctx, "Taxi to airport", "transport"); err != nil {
		t.Fatalf("add: %v", err)
	}
	p, err = svc.Predict(ctx, "taxi airport")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if corpus.lists.Load() != 2 {
		t.Fatalf("expected retraining after append, got %d trainings", corpus.lists.Load())
	}
	if p.NearestCategory != "transport" || p.Confidence < 0.99 {
		t.Fatalf("expected the new example to be the nearest neighbour, got %+v", p)
	}
}

func TestClassifierServiceEmptyDescriptionNeverTrains(t *testing.T) {
	corpus := seededCorpus()
	svc := NewClassifierService(corpus, ClassifierConfig{})

	for _, desc := range []string{"", "   "} {
		if _, err := svc.Predict(context.Background(), desc); !errors.Is(err, core.ErrEmptyDescription) {
			t.Fatalf("expected ErrEmptyDescription for %q, got %v", desc, err)
		}
	}
	if corpus.lists.Load() != 0 {
		t.Fatalf("expected no corpus reads")
	}
}

func TestClassifierServiceConcurrentPredictionsShareTraining(t *testing.T) {
	corpus := seededCorpus()
	svc := NewClassifierService(corpus, ClassifierConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Predict(context.Background(), "bus ticket"); err != nil {
				t.Errorf("predict: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := corpus.lists.Load(); n != 1 {
		t.Fatalf("expected a single training, got %d", n)
	}
}

func TestClassifierServiceEmptyCorpus(t *testing.T) {
	svc := NewClassifierService(&countingCorpus{}, ClassifierConfig{})
	if _, err := svc.Predict(context.Background(), "coffee"); !errors.Is(err, core.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

func TestClassifierServiceAddExample(t *testing.T) {
	corpus := memory.NewCSVCorpus(t.TempDir() + "/dataset.csv")
	svc := NewClassifierService(corpus, ClassifierConfig{})
	ctx := context.Background()

	ex, version, err := svc.AddExample(ctx, "  Coffee at Starbucks!  ", "food")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if ex.NormalizedDescription != "coffee starbucks" || version != 1 {
		t.Fatalf("unexpected stored example %+v version %d", ex, version)
	}

	for _, tt := range []struct {
		desc, cat string
		want      error
	}{
		{"", "food", core.ErrEmptyDescription},
		{"coffee", " ", core.ErrEmptyCategory},
	} {
		if _, _, err := svc.AddExample(ctx, tt.desc, tt.cat); !errors.Is(err, tt.want) {
			t.Errorf("AddExample(%q, %q) error = %v, want %v", tt.desc, tt.cat, err, tt.want)
		}
	}
	if v, _ := corpus.Version(ctx); v != 1 {
		t.Fatalf("rejected examples must not be appended, version %d", v)
	}
}

func ledgerWithDays(t *testing.T, owner string, days int, amount int64) *memory.Ledger {
	t.Helper()
	l := memory.NewLedger()
	start := core.NewDate(2024, 1, 1)
	for i := 0; i < days; i++ {
		if _, err := l.AddTransaction(context.Background(), core.Transaction{
			OwnerID:  owner,
			Amount:   core.NewMoneyFromCents(amount),
			Date:     start.AddDays(i),
			Category: "food",
		}); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func TestForecastServiceInsufficientData(t *testing.T) {
	svc := NewForecastService(ledgerWithDays(t, "alice", 9, 2000), ForecastConfig{})

	_, err := svc.Forecast(context.Background(), "alice")
	var insufficient *core.InsufficientDataError
	if !errors.As(err, &insufficient) || insufficient.Available != 9 || insufficient.Required != 10 {
		t.Fatalf("expected insufficient data (9 of 10), got %v", err)
	}
	if !errors.Is(err, core.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData in chain")
	}

	if _, err := svc.Forecast(context.Background(), " "); !errors.Is(err, core.ErrEmptyOwner) {
		t.Fatalf("expected ErrEmptyOwner, got %v", err)
	}
}

func TestForecastServiceConstantSeries(t *testing.T) {
	svc := NewForecastService(ledgerWithDays(t, "alice", 14, 2000), ForecastConfig{})

	res, err := svc.Forecast(context.Background(), "alice")
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(res.PerDay) != 30 || res.PerDay[0].Date.String() != "2024-01-15" {
		t.Fatalf("unexpected horizon %d starting %v", len(res.PerDay), res.PerDay[0].Date)
	}
	for _, d := range res.PerDay {
		if d.Amount < 19.9 || d.Amount > 20.1 {
			t.Fatalf("expected about 20 per day, got %v on %s", d.Amount, d.Date)
		}
	}
	if res.PerCategoryTotals["food"].String() != "280.00" {
		t.Fatalf("unexpected category totals %v", res.PerCategoryTotals)
	}
}

type fakeExporter struct {
	calls int
	err   error
}

func (f *fakeExporter) ExportForecast(_ context.Context, snap core.ForecastSnapshot) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "'Forecast " + snap.OwnerID + "'!A1:C40", nil
}

type fakePublisher struct {
	owners []string
	err    error
}

func (f *fakePublisher) PublishForecastRefresh(_ context.Context, ownerID, _ string) error {
	f.owners = append(f.owners, ownerID)
	return f.err
}

func TestForecastServiceRefresh(t *testing.T) {
	ledger := ledgerWithDays(t, "alice", 14, 2000)
	exporter := &fakeExporter{}
	svc := NewForecastService(ledger, ForecastConfig{Snapshots: ledger, Exporter: exporter})
	svc.now = func() time.Time { return time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	snap, ref, err := svc.Refresh(ctx, "alice")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.ID == 0 || ref == "" || exporter.calls != 1 {
		t.Fatalf("expected stored and exported snapshot, got id=%d ref=%q calls=%d", snap.ID, ref, exporter.calls)
	}
	latest, err := svc.Latest(ctx, "alice")
	if err != nil || latest.ID != snap.ID || len(latest.PerDay) != 30 {
		t.Fatalf("unexpected latest %+v (err=%v)", latest, err)
	}

	exporter.err = errors.New("quota exceeded")
	failed, _, err := svc.Refresh(ctx, "alice")
	if !errors.Is(err, core.ErrExportFailed) {
		t.Fatalf("expected ErrExportFailed, got %v", err)
	}
	if latest, _ := svc.Latest(ctx, "alice"); latest.ID != failed.ID || failed.ID == snap.ID {
		t.Fatalf("snapshot should be stored before the export, latest=%d failed=%d", latest.ID, failed.ID)
	}

	stale, err := svc.StaleOwners(ctx, time.Hour)
	if err != nil || len(stale) != 0 {
		t.Fatalf("expected no stale owners, got %v (err=%v)", stale, err)
	}
}

func TestForecastServiceRefreshWithoutSnapshots(t *testing.T) {
	svc := NewForecastService(ledgerWithDays(t, "alice", 14, 100), ForecastConfig{})
	if _, _, err := svc.Refresh(context.Background(), "alice"); !errors.Is(err, ErrSnapshotsDisabled) {
		t.Fatalf("expected ErrSnapshotsDisabled, got %v", err)
	}
}

func TestForecastServiceRequestRefresh(t *testing.T) {
	ledger := ledgerWithDays(t, "alice", 14, 2000)
	ctx := context.Background()

	pub := &fakePublisher{}
	svc := NewForecastService(ledger, ForecastConfig{Snapshots: ledger, Publisher: pub})
	queued, err := svc.RequestRefresh(ctx, "alice")
	if err != nil || !queued || len(pub.owners) != 1 || pub.owners[0] != "alice" {
		t.Fatalf("expected a published refresh, got queued=%v err=%v owners=%v", queued, err, pub.owners)
	}
	if _, err := ledger.LatestSnapshot(ctx, "alice"); !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Fatalf("queued refresh must not compute inline")
	}

	pub.err = errors.New("broker down")
	if _, err := svc.RequestRefresh(ctx, "alice"); err == nil {
		t.Fatal("expected publish error")
	}

	inline := NewForecastService(ledger, ForecastConfig{Snapshots: ledger})
	queued, err = inline.RequestRefresh(ctx, "alice")
	if err != nil || queued {
		t.Fatalf("expected inline refresh, got queued=%v err=%v", queued, err)
	}
	if _, err := ledger.LatestSnapshot(ctx, "alice"); err != nil {
		t.Fatalf("expected snapshot after inline refresh: %v", err)
	}

	unexported := NewForecastService(ledger, ForecastConfig{Snapshots: ledger, Exporter: &fakeExporter{err: errors.New("quota exceeded")}})
	if queued, err := unexported.RequestRefresh(ctx, "alice"); err != nil || queued {
		t.Fatalf("a stored but unexported refresh should succeed, got queued=%v err=%v", queued, err)
	}
}
