package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestHandlerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Output: &buf})

	logger.With("component", "test").WithGroup("req").Info("handled",
		"status", 200,
		"ok", true,
		"error", errors.New("boom"),
	)

	m := decodeLine(t, &buf)
	if m["message"] != "handled" {
		t.Errorf("message = %v", m["message"])
	}
	if m["level"] != "info" {
		t.Errorf("level = %v", m["level"])
	}
	if m["component"] != "test" {
		t.Errorf("component = %v", m["component"])
	}
	if m["req.status"] != float64(200) {
		t.Errorf("req.status = %v", m["req.status"])
	}
	if m["req.ok"] != true {
		t.Errorf("req.ok = %v", m["req.ok"])
	}
	if m["req.error"] != "boom" {
		t.Errorf("req.error = %v", m["req.error"])
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered, got %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(Config{Output: &buf})
	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Fatalf("default logger not installed: %q", buf.String())
	}
}
