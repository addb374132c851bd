package logx

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriterLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "push"))

	log.Debug("hidden")
	log.Info("generation opened", Uint32("last_id", 7), Int("replay", 2))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal(lines[0], &m); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if m["comp"] != "push" || m["message"] != "generation opened" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["last_id"] != float64(7) || m["replay"] != float64(2) {
		t.Fatalf("unexpected call-site fields: %v", m)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatalf("zero Logger should report IsZero")
	}
	log.Info("dropped", Err(nil))
	if Nop().IsZero() {
		t.Fatalf("Nop() should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	if got := parseLevel(" warning ", LevelInfo); got != LevelWarn {
		t.Fatalf("parseLevel = %v, want warn", got)
	}
	if got := parseLevel("bogus", LevelDebug); got != LevelDebug {
		t.Fatalf("parseLevel default = %v, want debug", got)
	}
}
