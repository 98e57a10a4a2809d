package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").Component("payments")
	logger.Info("hello", "appointment_id", "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["component"] != "payments" {
		t.Fatalf("expected component attribute, got %v", record["component"])
	}
	if record["appointment_id"] != "abc" {
		t.Fatalf("expected appointment_id attribute, got %v", record["appointment_id"])
	}
}

func TestNilLoggerWith(t *testing.T) {
	var l *Logger
	if l.With("k", "v") == nil {
		t.Fatal("expected non-nil child logger")
	}
}
