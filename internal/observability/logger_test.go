package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"warning", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"verbose", zap.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.env).Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

// buildToFile builds the service logger config writing to a temp file.
func buildToFile(t *testing.T, level, format string) (*zap.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.log")
	cfg := loggerConfig(level, format)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	logger, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return logger, path
}

func TestLoggerConfig_JSONLineCarriesServiceName(t *testing.T) {
	logger, path := buildToFile(t, "info", "")
	logger.Info("cache backend ready", zap.String("backend", "sqlite"))
	logger.Debug("suppressed at info")
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1:\n%s", len(lines), raw)
	}
	var line map[string]any
	if err := json.Unmarshal(lines[0], &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for key, want := range map[string]string{
		"service": ServiceName,
		"level":   "info",
		"msg":     "cache backend ready",
		"backend": "sqlite",
	} {
		if line[key] != want {
			t.Errorf("%s = %v, want %q", key, line[key], want)
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Error("log line has no timestamp field")
	}
}

func TestLoggerConfig_ConsoleFormat(t *testing.T) {
	cfg := loggerConfig("debug", "Console")
	if cfg.Encoding != "console" {
		t.Errorf("Encoding = %q, want console", cfg.Encoding)
	}
	if cfg.Level.Level() != zap.DebugLevel {
		t.Errorf("Level = %v, want debug", cfg.Level.Level())
	}
	if cfg.InitialFields["service"] != ServiceName {
		t.Errorf("InitialFields = %v, want service name", cfg.InitialFields)
	}

	logger, path := buildToFile(t, "debug", "console")
	logger.Debug("warming cache")
	_ = logger.Sync()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Contains(raw, []byte("DEBUG")) || !bytes.Contains(raw, []byte(ServiceName)) {
		t.Errorf("console line = %q, want level and service name", raw)
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(zap.WarnLevel) {
		t.Error("NewLogger() enabled warn with LOG_LEVEL=error")
	}
}
