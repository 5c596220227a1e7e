package config

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("qosapi", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Listen)
	}
	if cfg.GRPCListen != "" {
		t.Errorf("GRPCListen = %q, want empty", cfg.GRPCListen)
	}
	if cfg.Source != "postgres" || cfg.Sink != "postgres" {
		t.Errorf("Source/Sink = %s/%s, want postgres/postgres", cfg.Source, cfg.Sink)
	}
	if cfg.GridDuration != 168*time.Hour || cfg.GridStep != time.Minute {
		t.Errorf("grid = %v/%v, want 168h/1m", cfg.GridDuration, cfg.GridStep)
	}
	if cfg.CacheSize != 128 {
		t.Errorf("CacheSize = %d, want 128", cfg.CacheSize)
	}
	if !cfg.UsesPostgres() {
		t.Error("UsesPostgres() = false with postgres source")
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CACHE_SIZE", "16")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := parse(newFlagSet(), []string{"-cache-size=32"})
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.CacheSize != 32 {
		t.Errorf("CacheSize = %d, want 32 (flag wins)", cfg.CacheSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (from env)", cfg.LogLevel)
	}
}

func TestParse_SourceConfig(t *testing.T) {
	t.Setenv("SOURCE", "http")
	t.Setenv("SOURCE_URL", "http://curves/{{.Kind}}")
	t.Setenv("SOURCE_HEALTH_URL", "http://curves/health")
	t.Setenv("SOURCE_TEMPLATE_VARS", `{"Token":"x"}`)

	cfg, err := parse(newFlagSet(), []string{"-sink=none"})
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	want := map[string]string{
		"url":          "http://curves/{{.Kind}}",
		"healthUrl":    "http://curves/health",
		"templateVars": `{"Token":"x"}`,
	}
	for k, v := range want {
		if cfg.SourceConfig[k] != v {
			t.Errorf("SourceConfig[%q] = %q, want %q", k, cfg.SourceConfig[k], v)
		}
	}
	if cfg.UsesPostgres() {
		t.Error("UsesPostgres() = true with http source and no sink")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"log format", []string{"-log-format=xml"}, "log format"},
		{"log level", []string{"-log-level=loud"}, "log level"},
		{"source", []string{"-source=ftp"}, "invalid source"},
		{"memory source", []string{"-source=memory"}, "invalid source"},
		{"http source without url", []string{"-source=http"}, "SOURCE_URL"},
		{"sink", []string{"-sink=s3"}, "invalid sink"},
		{"zero step", []string{"-grid-step=0s"}, "grid step"},
		{"step exceeds duration", []string{"-grid-duration=1m", "-grid-step=2m"}, "cannot exceed"},
		{"cache size", []string{"-cache-size=0"}, "cache size"},
		{"tls without files", []string{"-tls-enabled"}, "server tls"},
		{"unknown flag", []string{"-nope"}, "not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(newFlagSet(), tt.args)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresUser:     "qos",
		PostgresPassword: "p@ss word",
		PostgresDB:       "metrics",
		PostgresHost:     "db",
		PostgresPort:     5433,
		PostgresSSLMode:  "require",
	}

	want := "postgres://qos:p%40ss%20word@db:5433/metrics?sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	cfg.PostgresDSN = "postgres://override"
	if got := cfg.DSN(); got != "postgres://override" {
		t.Errorf("DSN() = %q, want the explicit DSN", got)
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"URL":           "url",
		"HEALTH_URL":    "healthUrl",
		"CURVES_PATH":   "curvesPath",
		"TEMPLATE_VARS": "templateVars",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BOOL", "1")

	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want default 7", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
	if got := getEnv("TEST_UNSET_VALUE", "fallback"); got != "fallback" {
		t.Errorf("getEnv() = %q, want fallback", got)
	}
}

func TestLoadRuntime(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    Runtime
		wantErr bool
	}{
		{"full", "log_level: debug\ncache_size: 64\n", Runtime{LogLevel: "debug", CacheSize: 64}, false},
		{"partial", "cache_size: 8\n", Runtime{CacheSize: 8}, false},
		{"bad level", "log_level: loud\n", Runtime{}, true},
		{"negative size", "cache_size: -1\n", Runtime{}, true},
		{"bad yaml", "log_level: [\n", Runtime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}

			got, err := LoadRuntime(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadRuntime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && *got != tt.want {
				t.Errorf("LoadRuntime() = %+v, want %+v", *got, tt.want)
			}
		})
	}

	if _, err := LoadRuntime(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadRuntime() on a missing file should fail")
	}
}

func TestWatchRuntime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	if err := os.WriteFile(path, []byte("cache_size: 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Runtime, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchRuntime(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(rt *Runtime) {
			select {
			case changes <- rt:
			default:
			}
		})
	}()

	// Rewrite until the watcher has been added and reports the change.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case rt := <-changes:
			if rt.CacheSize != 42 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("WatchRuntime() error = %v", err)
			}
			return
		case <-ticker.C:
			if err := os.WriteFile(path, []byte("cache_size: 42\n"), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
		case <-deadline:
			t.Fatal("runtime change not observed")
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
