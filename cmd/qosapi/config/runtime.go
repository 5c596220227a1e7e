package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Runtime holds settings that can change while the service runs. Zero
// values mean "leave unchanged".
type Runtime struct {
	LogLevel  string `yaml:"log_level"`
	CacheSize int    `yaml:"cache_size"`
}

// LoadRuntime reads and validates a runtime YAML file.
func LoadRuntime(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runtime config: %w", err)
	}

	var rt Runtime
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("parse runtime config: %w", err)
	}

	if rt.LogLevel != "" {
		if _, err := ParseLevel(rt.LogLevel); err != nil {
			return nil, err
		}
	}
	if rt.CacheSize < 0 {
		return nil, fmt.Errorf("cache_size cannot be negative, got %d", rt.CacheSize)
	}

	return &rt, nil
}

// WatchRuntime calls onChange with the reloaded file each time path is
// written or replaced, until ctx is cancelled. A reload that fails is logged
// and skipped.
//
// The parent directory is watched so that atomic renames and Kubernetes
// ConfigMap symlink swaps are seen.
func WatchRuntime(ctx context.Context, path string, logger *slog.Logger, onChange func(*Runtime)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	logger.Info("watching runtime config", "path", path)

	name := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, name) {
				continue
			}

			rt, err := LoadRuntime(path)
			if err != nil {
				logger.Error("runtime config reload failed, keeping previous settings", "path", path, "error", err)
				continue
			}

			logger.Info("runtime config reloaded", "path", path)
			onChange(rt)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("runtime config watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event, name string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	base := filepath.Base(event.Name)
	// ConfigMap updates swap the ..data symlink rather than the file.
	return base == name || strings.HasPrefix(base, "..data")
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", s)
	}
}
