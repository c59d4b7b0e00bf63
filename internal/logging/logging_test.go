package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestJSONHandlerWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelInfo, false)
	logger.Debug("hidden")
	logger.Info("hello", "component", "test")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", line, err)
	}
	if entry["msg"] != "hello" || entry["component"] != "test" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelDebug, true).Debug("visible", "k", "v")
	if !strings.Contains(buf.String(), "msg=visible") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}
