package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/psds-microservice/ticket-chat-service/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the service logger: stdout always, plus a rotated file when LOG_FILE is set.
func New(cfg *config.Config) *slog.Logger {
	writers := []io.Writer{os.Stdout}
	if cfg.Log.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		})
	}
	return NewWithWriter(io.MultiWriter(writers...), cfg.LogLevel, useJSON(cfg), !cfg.IsProduction())
}

// NewWithWriter is New without the config lookup; tests use it to capture output.
func NewWithWriter(w io.Writer, level string, json, addSource bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level), AddSource: addSource}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", "ticket-chat-service"))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func useJSON(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		return true
	case "text":
		return false
	}
	return cfg.IsProduction()
}
