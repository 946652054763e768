package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nbtaylor/lockvault/config"
)

func TestNewDefaultsToStdout(t *testing.T) {
	l, err := New(config.LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{writer: &buf, level: Warn}

	l.Info("should be filtered", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected info line to be filtered at warn level, got %q", buf.String())
	}

	l.Warn("should appear", nil)
	if buf.Len() == 0 {
		t.Fatal("expected warn line to be written")
	}
}

func TestWriteProducesValidJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{writer: &buf, level: Debug}

	l.Info("deadlock detected", map[string]any{"victim": 3})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", line, err)
	}
	if decoded["message"] != "deadlock detected" {
		t.Errorf("unexpected message field: %v", decoded["message"])
	}
}

func TestWithComponentTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{writer: &buf, level: Debug}
	scoped := l.WithComponent("engine")

	scoped.Info("hello", nil)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["component"] != "engine" {
		t.Errorf("expected component engine, got %v", decoded["component"])
	}
}

func TestNilLoggerMethodsAreNoOps(t *testing.T) {
	var l *Logger
	// None of these should panic.
	l.Debug("x", nil)
	l.Info("x", nil)
	l.Warn("x", nil)
	l.Error("x", nil)
}
