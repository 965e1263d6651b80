package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"previsioni/internal/core"

	goption "google.golang.org/api/option"
)

func sampleSnapshot() core.ForecastSnapshot {
	return core.ForecastSnapshot{
		OwnerID:      "alice",
		CreatedAt:    time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Model:        "holt_winters",
		HorizonTotal: 61.5,
		PerDay: []core.DailyAmount{
			{Date: core.NewDate(2024, 3, 11), Amount: 20},
			{Date: core.NewDate(2024, 3, 12), Amount: 41.5},
		},
		PerCategoryTotals: map[string]core.Money{
			"transport": core.NewMoneyFromCents(1200),
			"food":      core.NewMoneyFromCents(350),
		},
	}
}

func TestForecastRows(t *testing.T) {
	rows := forecastRows(sampleSnapshot())

	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d: %v", len(rows), rows)
	}
	if rows[2][1] != "holt_winters" || rows[3][1] != "61.50" {
		t.Errorf("unexpected summary %v", rows[:4])
	}
	if rows[5][0] != "Date" || rows[6][0] != "2024-03-11" || rows[7][1] != "41.50" {
		t.Errorf("unexpected per-day block %v", rows[5:8])
	}
	if rows[10][0] != "transport" || rows[10][1] != "12.00" || rows[11][0] != "food" || rows[11][1] != "3.50" {
		t.Errorf("expected categories largest first, got %v", rows[9:])
	}
}

func TestForecastRowsWithFitError(t *testing.T) {
	snap := sampleSnapshot()
	snap.Model = "naive"
	snap.FitError = "holt_winters: non-finite fit error"
	snap.PerCategoryTotals = nil

	rows := forecastRows(snap)
	if rows[4][0] != "Fit error" {
		t.Fatalf("expected fit error row, got %v", rows[4])
	}
	for _, r := range rows {
		if len(r) > 0 && r[0] == "Category" {
			t.Fatalf("expected no category block")
		}
	}
}

func TestSheetTitle(t *testing.T) {
	tests := []struct{ base, owner, want string }{
		{"Forecast", "alice", "Forecast alice"},
		{"Forecast", "a/b:c", "Forecast a_b_c"},
		{"Forecast", " bob ", "Forecast bob"},
	}
	for _, tt := range tests {
		if got := sheetTitle(tt.base, tt.owner); got != tt.want {
			t.Errorf("sheetTitle(%q, %q) = %q, want %q", tt.base, tt.owner, got, tt.want)
		}
	}
}

func TestNewWithOptionsRequiresSpreadsheet(t *testing.T) {
	_, err := NewWithOptions(context.Background(), "  ", "")
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExportForecastAgainstFakeAPI(t *testing.T) {
	var (
		mu       sync.Mutex
		calls    []string
		written  [][]any
		inputOpt string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path := r.URL.Path
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
			calls = append(calls, "get")
			io.WriteString(w, `{"sheets":[{"properties":{"title":"Other"}}]}`)
		case strings.HasSuffix(path, ":batchUpdate"):
			calls = append(calls, "add")
			io.WriteString(w, `{}`)
		case strings.HasSuffix(path, ":clear"):
			calls = append(calls, "clear")
			io.WriteString(w, `{}`)
		case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
			calls = append(calls, "update")
			inputOpt = r.URL.Query().Get("valueInputOption")
			var body struct {
				Values [][]any `json:"values"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			written = body.Values
			io.WriteString(w, `{}`)
		default:
			http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewWithOptions(context.Background(), "sid", "",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ref, err := c.ExportForecast(context.Background(), sampleSnapshot())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "'Forecast alice'!A1:C12" {
		t.Errorf("unexpected ref %q", ref)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(calls, ",") != "get,add,clear,update" {
		t.Errorf("unexpected call sequence %v", calls)
	}
	if inputOpt != "USER_ENTERED" {
		t.Errorf("expected USER_ENTERED, got %q", inputOpt)
	}
	if len(written) != 12 || written[0][1] != "alice" {
		t.Errorf("unexpected written values %v", written)
	}
}
