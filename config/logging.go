package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
}

func newLogConfig() (LogConfig, error) {
	var level slog.Level
	switch strings.ToLower(getEnv("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return LogConfig{}, fmt.Errorf("invalid value for LOG_LEVEL: %q", os.Getenv("LOG_LEVEL"))
	}

	format := strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if format != "text" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid value for LOG_FORMAT: %q", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

// NewLogger builds a logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}

	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
