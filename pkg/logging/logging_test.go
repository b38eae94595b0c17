package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Helper()
	testCases := []struct {
		level       string
		expectDebug bool
		expectWarn  bool
		expectError bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, true, true},
		{"warning", false, true, true},
		{"error", false, false, true},
		{"", false, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			t.Helper()
			logger := NewLogger(tc.level, "text")
			if logger == nil {
				t.Fatalf("expected logger instance")
			}
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tc.expectDebug {
				t.Fatalf("debug enabled mismatch: got %v want %v", got, tc.expectDebug)
			}
			if got := logger.Enabled(ctx, slog.LevelWarn); got != tc.expectWarn {
				t.Fatalf("warn enabled mismatch: got %v want %v", got, tc.expectWarn)
			}
			if got := logger.Enabled(ctx, slog.LevelError); got != tc.expectError {
				t.Fatalf("error enabled mismatch: got %v want %v", got, tc.expectError)
			}
		})
	}
}

func TestNewLoggerFormats(t *testing.T) {
	t.Helper()

	var jsonOutput bytes.Buffer
	NewLoggerWithWriter(&jsonOutput, "INFO", "JSON").Info("relay_delivered", "recipient", "ops@example.com")
	var record map[string]any
	if err := json.Unmarshal(jsonOutput.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", jsonOutput.String(), err)
	}
	if record["msg"] != "relay_delivered" || record["recipient"] != "ops@example.com" {
		t.Fatalf("unexpected JSON record %v", record)
	}

	var textOutput bytes.Buffer
	NewLoggerWithWriter(&textOutput, "INFO", "text").Info("relay_delivered", "recipient", "ops@example.com")
	if !strings.Contains(textOutput.String(), "msg=relay_delivered") {
		t.Fatalf("expected text record, got %q", textOutput.String())
	}
}
