// Package google writes forecast snapshots to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"previsioni/internal/core"
	"previsioni/internal/ports"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the base tab name; the owner id is appended per export.
const DefaultSheetName = "Forecast"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// Ensure interface conformance
var _ ports.ForecastExporter = (*Client)(nil)

// New creates an exporter authenticated with service account credentials
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	credentials, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, spreadsheetID, sheetBase,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates an exporter with explicit client options.
func NewWithOptions(ctx context.Context, spreadsheetID, sheetBase string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = DefaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: strings.TrimSpace(sheetBase)}, nil
}

func loadCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// ExportForecast replaces the owner's forecast tab with the snapshot and
// returns the written range.
func (c *Client) ExportForecast(ctx context.Context, snap core.ForecastSnapshot) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := sheetTitle(c.sheetBase, snap.OwnerID)
	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	quoted := quoteSheet(title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", title, err)
	}

	rows := forecastRows(snap)
	rng := fmt.Sprintf("%s!A1:C%d", quoted, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", title, err)
	}

	slog.DebugContext(ctx, "Forecast exported to sheet", "sheet", title, "rows", len(rows))
	return rng, nil
}

// ensureSheet adds the tab when the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}

// forecastRows lays out a snapshot as a summary block, the per-day series
// and the per-category historical totals, largest first.
func forecastRows(snap core.ForecastSnapshot) [][]any {
	rows := [][]any{
		{"Owner", snap.OwnerID},
		{"Generated", snap.CreatedAt.UTC().Format(time.RFC3339)},
		{"Model", snap.Model},
		{"Horizon total", formatAmount(snap.HorizonTotal)},
	}
	if snap.FitError != "" {
		rows = append(rows, []any{"Fit error", snap.FitError})
	}

	rows = append(rows, []any{}, []any{"Date", "Forecast"})
	for _, d := range snap.PerDay {
		rows = append(rows, []any{d.Date.String(), formatAmount(d.Amount)})
	}

	if len(snap.PerCategoryTotals) > 0 {
		rows = append(rows, []any{}, []any{"Category", "Historical total"})
		for _, c := range core.SortedCategoryAmounts(snap.PerCategoryTotals) {
			rows = append(rows, []any{c.Name, c.Amount.String()})
		}
	}
	return rows
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// sheetTitle returns "<base> <owner>". Sheets forbids a few characters in
// tab names, so they are replaced.
func sheetTitle(base, owner string) string {
	owner = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '*', '?', '/', '\\', ':', '\'':
			return '_'
		}
		return r
	}, strings.TrimSpace(owner))
	return strings.TrimSpace(base + " " + owner)
}

func quoteSheet(title string) string {
	return "'" + title + "'"
}
