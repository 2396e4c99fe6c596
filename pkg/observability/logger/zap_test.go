package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newBufferLogger(t *testing.T, level LogLevel) (*ZapLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewZapLogger(Config{Level: level, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "json debug", config: Config{Level: DebugLevel, Format: JSONFormat}},
		{name: "text info", config: Config{Level: InfoLevel, Format: TextFormat}},
		{name: "invalid level falls back", config: Config{Level: "invalid", Format: JSONFormat}},
		{name: "default config", config: DefaultConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf
			l, err := NewZapLogger(tt.config)
			if err != nil {
				t.Fatalf("NewZapLogger() error = %v", err)
			}
			l.Info("hello")
			if buf.Len() == 0 {
				t.Error("expected info entry to be written")
			}
		})
	}
}

func TestZapLogger_StructuredFields(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel)

	l.Error("HEALTH CHECK FAILED", "kind", "timeout", "stage", "write")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	for key, want := range map[string]any{
		"message": "HEALTH CHECK FAILED",
		"level":   "error",
		"kind":    "timeout",
		"stage":   "write",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestZapLogger_With(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel)

	child := l.With("component", "monitor")
	child.Info("tick")
	l.Info("parent")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["component"] != "monitor" {
		t.Errorf("expected child field, got %v", entries[0])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Error("expected parent logger to be unaffected by With")
	}
}

func TestZapLogger_WithContext(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	l.WithContext(ctx).Info("traced")
	l.WithContext(context.Background()).Info("untraced")

	entries := decodeLines(t, buf)
	if entries[0]["trace_id"] != traceID.String() || entries[0]["span_id"] != spanID.String() {
		t.Errorf("expected trace fields, got %v", entries[0])
	}
	if _, ok := entries[1]["trace_id"]; ok {
		t.Error("expected no trace_id without an active span")
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", "k", "v")
	l.With("a", 1).Error("discarded")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{"json", JSONFormat, false},
		{"text", TextFormat, false},
		{"console", TextFormat, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
