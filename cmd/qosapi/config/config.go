// Package config provides configuration parsing for the qosapi service.
//
// Configuration comes from command-line flags and environment variables, with
// flags taking precedence over environment variables. An optional .env file in
// the working directory is loaded into the environment first; variables
// already set are not overridden.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables (including .env)
//  3. Default values
//
// Curve source options are read from SOURCE_* variables into a generic map,
// e.g. SOURCE_URL=http://curves/{{.Kind}} becomes {"url": "..."}.
//
// A YAML runtime file (see Runtime) may carry settings that can change
// without a restart.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HatiCode/qosmetric/pkg/qos"
	"github.com/HatiCode/qosmetric/pkg/tls"
)

// Config holds all qosapi configuration.
type Config struct {
	Listen         string
	GRPCListen     string
	LogFormat      string
	LogLevel       string
	RequestTimeout time.Duration
	RuntimeConfig  string
	TLS            tls.Config

	Source       string
	SourceConfig map[string]string
	SourceTLS    tls.Config

	Sink          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	PostgresDSN      string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	GridDuration time.Duration
	GridStep     time.Duration
	CacheSize    int
}

// ParseFlags loads .env, parses os.Args and validates the result.
func ParseFlags() (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC listen address (empty disables gRPC)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 30*time.Second), "Per-request timeout for metric computation")
	fs.StringVar(&cfg.RuntimeConfig, "runtime-config", getEnv("RUNTIME_CONFIG", ""), "Optional YAML file with live-reloadable settings")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the HTTP and gRPC servers")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", "postgres"), "Curve source: postgres or http")
	fs.BoolVar(&cfg.SourceTLS.Enabled, "curves-tls-enabled", getEnvBool("CURVES_TLS_ENABLED", false), "Enable mTLS towards the HTTP curve source")
	fs.StringVar(&cfg.SourceTLS.CertFile, "curves-tls-cert-file", getEnv("CURVES_TLS_CERT_FILE", ""), "Client certificate for the HTTP curve source")
	fs.StringVar(&cfg.SourceTLS.KeyFile, "curves-tls-key-file", getEnv("CURVES_TLS_KEY_FILE", ""), "Client key for the HTTP curve source")
	fs.StringVar(&cfg.SourceTLS.CAFile, "curves-tls-ca-file", getEnv("CURVES_TLS_CA_FILE", ""), "CA certificate for the HTTP curve source")

	fs.StringVar(&cfg.Sink, "sink", getEnv("SINK", "postgres"), "Result sink: postgres, redis, memory, or none")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*24*time.Hour), "Redis metric TTL")

	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", getEnv("POSTGRES_DSN", ""), "Postgres DSN (overrides the POSTGRES_* parts)")
	fs.StringVar(&cfg.PostgresUser, "postgres-user", getEnv("POSTGRES_USER", "postgres"), "Postgres user")
	fs.StringVar(&cfg.PostgresPassword, "postgres-password", getEnv("POSTGRES_PASSWORD", ""), "Postgres password")
	fs.StringVar(&cfg.PostgresDB, "postgres-db", getEnv("POSTGRES_DB", "postgres"), "Postgres database")
	fs.StringVar(&cfg.PostgresHost, "postgres-host", getEnv("POSTGRES_HOST", "localhost"), "Postgres host")
	fs.IntVar(&cfg.PostgresPort, "postgres-port", getEnvInt("POSTGRES_PORT", 5432), "Postgres port")
	fs.StringVar(&cfg.PostgresSSLMode, "postgres-sslmode", getEnv("POSTGRES_SSLMODE", "disable"), "Postgres sslmode")

	fs.DurationVar(&cfg.GridDuration, "grid-duration", getEnvDuration("GRID_DURATION", qos.DefaultDuration), "Evaluation grid span")
	fs.DurationVar(&cfg.GridStep, "grid-step", getEnvDuration("GRID_STEP", qos.DefaultStep), "Evaluation grid step")
	fs.IntVar(&cfg.CacheSize, "cache-size", getEnvInt("CACHE_SIZE", 128), "Number of cached (location, week) results")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.SourceConfig = parsePrefixed(os.Environ(), "SOURCE_")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	// The memory source starts empty and has no loader, so it is left to tests.
	switch c.Source {
	case "postgres":
	case "http":
		if c.SourceConfig["url"] == "" {
			return errors.New("http source requires SOURCE_URL")
		}
	default:
		return fmt.Errorf("invalid source %q (must be postgres or http)", c.Source)
	}

	switch c.Sink {
	case "postgres", "memory", "none":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis sink requires a redis address")
		}
	default:
		return fmt.Errorf("invalid sink %q (must be postgres, redis, memory, or none)", c.Sink)
	}

	if c.GridStep <= 0 {
		return fmt.Errorf("grid step must be > 0, got %v", c.GridStep)
	}
	if c.GridStep > c.GridDuration {
		return fmt.Errorf("grid step (%v) cannot exceed grid duration (%v)", c.GridStep, c.GridDuration)
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be > 0, got %d", c.CacheSize)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative, got %v", c.RequestTimeout)
	}

	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("server tls: %w", err)
	}
	if err := c.SourceTLS.Validate(); err != nil {
		return fmt.Errorf("curve source tls: %w", err)
	}

	return nil
}

// UsesPostgres reports whether the source or the sink needs a database.
func (c *Config) UsesPostgres() bool {
	return c.Source == "postgres" || c.Sink == "postgres"
}

// DSN returns PostgresDSN when set, otherwise a URL assembled from the
// POSTGRES_* parts.
func (c *Config) DSN() string {
	if c.PostgresDSN != "" {
		return c.PostgresDSN
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:     "/" + c.PostgresDB,
		RawQuery: url.Values{"sslmode": []string{c.PostgresSSLMode}}.Encode(),
	}
	return u.String()
}

// parsePrefixed collects prefix-ed variables into a map keyed by the
// lowerCamelCase remainder (SOURCE_HEALTH_URL → healthUrl).
func parsePrefixed(environ []string, prefix string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			continue
		}
		config[toLowerCamelCase(name[len(prefix):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
