package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snmpfwd/snmpfwd/forwarder/internal/config"
)

func TestNewHandler_Formats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, "json", slog.LevelInfo)).Info("hello", "oid", "1.3.6.1")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json handler output not JSON: %v (%s)", err, buf.String())
	}
	if rec["oid"] != "1.3.6.1" {
		t.Errorf("oid attr: got %v", rec["oid"])
	}

	buf.Reset()
	slog.New(newHandler(&buf, "text", slog.LevelInfo)).Info("hello", "oid", "1.3.6.1")
	if !strings.Contains(buf.String(), "oid=1.3.6.1") {
		t.Errorf("text handler output: got %q", buf.String())
	}
}

func TestNewLogger_LevelAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snmpfwd.log")
	level := new(slog.LevelVar)

	logger, closeFn := newLogger(config.LogConfig{Level: "warn", Format: "json", File: path}, level)
	if level.Level() != slog.LevelWarn {
		t.Errorf("level: got %v, want WARN", level.Level())
	}

	logger.Info("dropped")
	logger.Warn("kept")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Errorf("warn line missing from log file: %q", data)
	}

	level.Set(slog.LevelDebug)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should follow LevelVar changes")
	}
}
