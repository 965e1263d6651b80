package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormatTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentApp, Format: FormatJSON, Output: &buf, Level: slog.LevelDebug})

	logger.WithComponent(ComponentForecast).Info("Forecast computed", FieldOwnerID, "alice")

	line := buf.String()
	if n := strings.Count(line, `"component"`); n != 1 {
		t.Fatalf("component key appears %d times in %s", n, line)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["component"] != ComponentForecast || rec[FieldOwnerID] != "alice" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentApp, Output: &buf, Level: slog.LevelWarn})

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestStructuredLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Component: ComponentApp, Format: FormatJSON, Output: &buf}))

	sl.LogError(context.Background(), "Request failed", errors.New("boom"), ComponentHTTP, OpPredict,
		NewFields().WithRequestID("req_1"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["component"] != ComponentHTTP || rec[FieldOperation] != OpPredict || rec[FieldRequestID] != "req_1" {
		t.Errorf("unexpected record %v", rec)
	}
	if rec[FieldError] != "boom" {
		t.Errorf("error field = %v", rec[FieldError])
	}
}
