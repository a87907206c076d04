// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelQuery sits between debug and info and carries rendered SQL text.
const LevelQuery = slog.Level(-2)

// ParseLevel maps DEBUG, QUERY, INFO, WARN and ERROR to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "QUERY":
		return LevelQuery, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New creates a text logger on stderr. When file is set, output is also appended to it.
// The returned closer releases the file and is never nil.
func New(level, file string) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = os.Stderr
	closer := io.Closer(nopCloser{})
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l == LevelQuery {
					a.Value = slog.StringValue("QUERY")
				}
			}
			return a
		},
	})
	return slog.New(handler), closer, nil
}

// Discard returns a logger that drops everything. Used as a default for optional loggers.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Query logs statement text at LevelQuery.
func Query(ctx context.Context, log *slog.Logger, msg string, args ...any) {
	log.Log(ctx, LevelQuery, msg, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
