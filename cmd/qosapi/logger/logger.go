// Package logger builds the service's slog.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/HatiCode/qosmetric/cmd/qosapi/config"
)

// level is shared by every handler New creates, so SetLevel applies to the
// whole process.
var level = new(slog.LevelVar)

// New creates a text or JSON logger writing to stdout at cfg.LogLevel.
func New(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
}

func newLogger(w io.Writer, format, lvl string) *slog.Logger {
	_ = SetLevel(lvl)

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLevel changes the level of all loggers created by New. The current level
// is kept when name is invalid.
func SetLevel(name string) error {
	l, err := config.ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// Level returns the current level.
func Level() slog.Level {
	return level.Level()
}
