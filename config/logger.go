package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger, writing to stdout.
// LOG_LEVEL takes a slog level name (debug, info, warn, error; case-insensitive, default info).
// LOG_FORMAT is json or text; it defaults to json in production and text elsewhere.
// Every record carries service=guestlist and the GO_ENV environment.
func NewLogger() *slog.Logger {
	return newLogger(os.Stdout, os.Getenv("GO_ENV"), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(w io.Writer, env, level, format string) *slog.Logger {
	if env == "" {
		env = "development"
	}
	lvl := slog.LevelInfo
	if level = strings.TrimSpace(level); level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "text"
		if env == "production" {
			format = "json"
		}
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "guestlist", "env", env)
}
