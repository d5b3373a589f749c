package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger builds the process logger: JSON for machines, tint for terminals.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	if format == LogFormatText {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
