// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"simple-web-proxy/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a logger from cfg. Records go to stdout and, when cfg.File is
// set, to a rotating file. The returned closer releases the file and must be
// called on shutdown.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	if !cfg.Enabled {
		return slog.New(slog.DiscardHandler), nopCloser{}, nil
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		// Fail at startup rather than on the first write.
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open %s: %w", cfg.File, err)
		}
		f.Close()

		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(os.Stdout, lj)
		closer = lj
	}

	return newLogger(cfg, w), closer, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a configured level name to a slog level. Unknown names map
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
