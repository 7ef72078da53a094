package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.0", WarnLevel)
	logger.SetOutput(&buf)

	ctx := context.Background()
	logger.Debug(ctx, "debug message", nil)
	logger.Info(ctx, "info message", nil)
	logger.Warn(ctx, "warn message", nil)

	if got := buf.String(); !bytes.Contains(buf.Bytes(), []byte("warn message")) {
		t.Errorf("expected warn message in output, got %q", got)
	}
	if bytes.Contains(buf.Bytes(), []byte("info message")) {
		t.Error("info message should have been filtered")
	}
}

func TestLoggerEmitsJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test-service", "1.2.3", InfoLevel)
	logger.SetOutput(&buf)

	logger.Info(context.Background(), "records ingested", Fields{
		"record_count": 42,
	})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("Level = %v, want INFO", entry.Level)
	}
	if entry.Service != "test-service" {
		t.Errorf("Service = %v, want test-service", entry.Service)
	}
	if entry.Message != "records ingested" {
		t.Errorf("Message = %v", entry.Message)
	}
	if entry.Fields["record_count"] != float64(42) {
		t.Errorf("record_count = %v, want 42", entry.Fields["record_count"])
	}
}

func TestLoggerErrorIncludesErrorAndCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.0", ErrorLevel)
	logger.SetOutput(&buf)

	logger.Error(context.Background(), "commit failed", nil, errors.New("connection reset"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if entry.Error != "connection reset" {
		t.Errorf("Error = %v, want connection reset", entry.Error)
	}
	if entry.File == "" || entry.Line == 0 {
		t.Error("expected caller information on error entries")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"", InfoLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
