package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHelpersSafeWithoutInit(t *testing.T) {
	// The package default is a no-op logger: library callers that
	// never run Init must be able to log without a panic.
	if Log == nil || Sugar == nil {
		t.Fatal("default logger is nil")
	}
	Debug("quiet")
	Info("quiet")
	Warn("quiet")
	Error("quiet")
	Sync()
}

func TestInitWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "meshtex.log")

	if err := InitWithFileConfig("debug", DefaultFileConfig(logPath), false); err != nil {
		t.Fatalf("InitWithFileConfig failed: %v", err)
	}
	Info("painting atlas", zap.Int("atlas", 0))
	Debug("debug line")
	Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "painting atlas") {
		t.Errorf("log file missing info message: %q", out)
	}
	if !strings.Contains(out, "debug line") {
		t.Errorf("log file missing debug message at debug level: %q", out)
	}
}

func TestInitLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "meshtex.log")

	if err := InitWithFileConfig("warn", DefaultFileConfig(logPath), false); err != nil {
		t.Fatalf("InitWithFileConfig failed: %v", err)
	}
	Info("hidden")
	Warn("visible")
	Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info message leaked at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn message missing")
	}
}
