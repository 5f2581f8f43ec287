package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ENVIRONMENT", "BACKEND_URL", "LOG_LEVEL", "DRAFT_DEBOUNCE_MS", "REQUEST_TIMEOUT_SECONDS", "STREAM_CHUNK_DELAY_MS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Environment != "dev" || cfg.LogLevel != "debug" {
		t.Errorf("environment = %q, log level = %q", cfg.Environment, cfg.LogLevel)
	}
	if cfg.BackendURL != "http://localhost:8080" {
		t.Errorf("backend url = %q", cfg.BackendURL)
	}
	if cfg.DraftDebounce != time.Second || cfg.RequestTimeout != 30*time.Second || cfg.StreamChunkDelay != 25*time.Millisecond {
		t.Errorf("durations = %v, %v, %v", cfg.DraftDebounce, cfg.RequestTimeout, cfg.StreamChunkDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BACKEND_URL", "https://chat.example.com/")
	t.Setenv("DRAFT_DEBOUNCE_MS", "250")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "-4")

	cfg := Load()
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want info outside dev", cfg.LogLevel)
	}
	if cfg.BackendURL != "https://chat.example.com" {
		t.Errorf("backend url = %q, want trailing slash trimmed", cfg.BackendURL)
	}
	if cfg.DraftDebounce != 250*time.Millisecond {
		t.Errorf("draft debounce = %v", cfg.DraftDebounce)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %v, want default for a negative value", cfg.RequestTimeout)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLogFileRotates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cli-2024-01-01T00-00-00.000.log", "cli-2024-01-02T00-00-00.000.log", "other-2024-01-01T00-00-00.000.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f, err := SetupLogFile(dir, "cli", 2)
	if err != nil {
		t.Fatalf("SetupLogFile: %v", err)
	}
	f.Close()

	kept, _ := filepath.Glob(filepath.Join(dir, "cli-*.log"))
	if len(kept) != 2 {
		t.Fatalf("kept %v, want 2 files", kept)
	}
	if filepath.Base(kept[0]) != "cli-2024-01-02T00-00-00.000.log" {
		t.Errorf("oldest kept = %s, want the 2024-01-02 file", filepath.Base(kept[0]))
	}
	if _, err := os.Stat(filepath.Join(dir, "other-2024-01-01T00-00-00.000.log")); err != nil {
		t.Errorf("file of another prefix removed: %v", err)
	}
}
