package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string
	// Client side
	BackendURL     string
	DefaultModel   string
	DraftDebounce  time.Duration
	RequestTimeout time.Duration
	// Dev backend
	Port             string
	CORSOrigins      string
	StreamChunkDelay time.Duration
	// Logging
	LogLevel string
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Environment:      env,
		BackendURL:       strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
		DefaultModel:     getEnv("DEFAULT_MODEL", "lorem-fast"),
		DraftDebounce:    getDurationMS("DRAFT_DEBOUNCE_MS", 1000),
		RequestTimeout:   time.Duration(getInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		Port:             getEnv("PORT", "8080"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost:3000"),
		StreamChunkDelay: getDurationMS("STREAM_CHUNK_DELAY_MS", 25),
		LogLevel:         getEnv("LOG_LEVEL", getDefaultLogLevel(env)),
	}
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getDefaultLogLevel returns the default log level based on environment
func getDefaultLogLevel(env string) string {
	if env == "dev" {
		return "debug"
	}
	return "info"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func getDurationMS(key string, defaultMS int) time.Duration {
	return time.Duration(getInt(key, defaultMS)) * time.Millisecond
}
