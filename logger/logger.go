// Package logger builds the structured logger used across the counter.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config describes a logger.
type Config struct {
	Level  slog.Level
	Format Format
	Output io.Writer // nil means stderr
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// LoadConfig reads LOG_LEVEL and LOG_FORMAT.
func LoadConfig() Config {
	format := FormatJSON
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), string(FormatText)) {
		format = FormatText
	}
	return Config{
		Level:  ParseLevel(os.Getenv("LOG_LEVEL")),
		Format: format,
	}
}

// New creates a logger tagged with the component name.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var h slog.Handler
	if cfg.Format == FormatText {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h).With("component", "sharded-counter")
}
