package config

import (
	"io"
	"log/slog"
)

// NewLogger returns the process logger: human-readable text in development,
// JSON everywhere else, at the configured level.
func NewLogger(c *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.IsDevelopment() {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
