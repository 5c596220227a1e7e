// Command qosapi serves the weekly quality-of-service metric of a location.
//
// For a location and a week it fetches the inventory curves of every product
// and a consumption profile, and integrates product availability against the
// cumulative consumption over the week. Results are cached in-process and
// recorded to a result sink.
//
// The service exposes an HTTP API on port 8080 (configurable):
//   - GET /api/v1/qos/{location}/week/{DD.MM.YYYY} - Compute or return the cached metric
//   - GET|HEAD /healthz, /healthcheck - Health check endpoints
//   - GET /metrics - Prometheus metrics endpoint
//
// and, when GRPC_LISTEN is set, the qosmetric.v1.QoSService gRPC service with
// the standard health service.
//
// Usage:
//
//	qosapi \
//	  -source=postgres -sink=postgres \
//	  -postgres-host=db -postgres-user=qos -postgres-db=qos \
//	  -cache-size=256
//
// Environment variables:
//
//	LISTEN          - HTTP listen address (default: :8080)
//	GRPC_LISTEN     - gRPC listen address (default: disabled)
//	SOURCE          - Curve source: postgres, http (default: postgres)
//	SOURCE_*        - Curve source options, e.g. SOURCE_URL
//	SINK            - Result sink: postgres, redis, memory, none (default: postgres)
//	POSTGRES_*      - USER, PASSWORD, DB, HOST, PORT, SSLMODE or DSN
//	REDIS_ADDR      - Redis address for the redis sink
//	GRID_DURATION   - Evaluation grid span (default: 168h)
//	GRID_STEP       - Evaluation grid step (default: 1m)
//	CACHE_SIZE      - Cached results (default: 128)
//	RUNTIME_CONFIG  - YAML file with log_level and cache_size, reloaded on change
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/qosmetric/cmd/qosapi/config"
	"github.com/HatiCode/qosmetric/cmd/qosapi/logger"
	"github.com/HatiCode/qosmetric/cmd/qosapi/metrics"
	"github.com/HatiCode/qosmetric/cmd/qosapi/router"
	"github.com/HatiCode/qosmetric/pkg/curves"
	"github.com/HatiCode/qosmetric/pkg/engine"
	"github.com/HatiCode/qosmetric/pkg/grpcapi"
	"github.com/HatiCode/qosmetric/pkg/httpx"
	"github.com/HatiCode/qosmetric/pkg/qos"
	"github.com/HatiCode/qosmetric/pkg/sources"
	"github.com/HatiCode/qosmetric/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	log := logger.New(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("qosapi failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting qosapi",
		"version", version,
		"source", cfg.Source,
		"sink", cfg.Sink,
		"grid_duration", cfg.GridDuration,
		"grid_step", cfg.GridStep,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *sql.DB
	if cfg.UsesPostgres() {
		var err error
		db, err = storage.OpenPostgres(ctx, cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
	}

	repo, err := newSource(cfg, db)
	if err != nil {
		return err
	}

	sink, err := newSink(ctx, cfg, db)
	if err != nil {
		return err
	}
	if closer, ok := sink.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close result sink", "error", err)
			}
		}()
	}
	if stopper, ok := sink.(interface{ Stop() }); ok {
		defer stopper.Stop()
	}

	m := metrics.New(nil)
	calc := qos.Calculator{Duration: cfg.GridDuration, Step: cfg.GridStep}

	e, err := engine.New(repo, sink, calc, cfg.CacheSize, log, m)
	if err != nil {
		return err
	}

	if cfg.RuntimeConfig != "" {
		if rt, err := config.LoadRuntime(cfg.RuntimeConfig); err != nil {
			log.Warn("ignoring runtime config", "path", cfg.RuntimeConfig, "error", err)
		} else {
			applyRuntime(rt, e, log)
		}
		go func() {
			if err := config.WatchRuntime(ctx, cfg.RuntimeConfig, log, func(rt *config.Runtime) {
				applyRuntime(rt, e, log)
			}); err != nil {
				log.Error("runtime config watch stopped", "error", err)
			}
		}()
	}

	serverTLS, err := cfg.TLS.ServerConfig()
	if err != nil {
		return fmt.Errorf("server tls: %w", err)
	}

	handler := router.SetupRoutes(e, cfg.RequestTimeout, nil, log)
	httpServer := httpx.NewServer(cfg.Listen, handler, log)
	httpServer.SetTLSConfig(serverTLS)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var grpcServer *grpcapi.Server
	if cfg.GRPCListen != "" {
		grpcServer = grpcapi.NewServer(grpcapi.NewService(e, log), e, serverTLS, log)
		go grpcServer.WatchHealth(ctx, 30*time.Second)
		go func() {
			serverErr <- grpcServer.Start(cfg.GRPCListen)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if grpcServer != nil {
		grpcServer.Stop(10 * time.Second)
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		return err
	}

	stats := e.Cache().Stats()
	log.Info("shutdown complete",
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
		"cache_hit_ratio", stats.HitRatio(),
	)
	return nil
}

func newSource(cfg *config.Config, db *sql.DB) (curves.Repository, error) {
	deps := sources.Deps{DB: db}
	if cfg.Source == "http" {
		client, err := httpx.NewClient(cfg.SourceTLS, 30*time.Second)
		if err != nil {
			return nil, fmt.Errorf("curve source client: %w", err)
		}
		deps.HTTPClient = client
	}

	repo, err := sources.New(cfg.Source, cfg.SourceConfig, deps)
	if err != nil {
		return nil, fmt.Errorf("create curve source: %w", err)
	}
	return repo, nil
}

// newSink returns nil for the "none" sink.
func newSink(ctx context.Context, cfg *config.Config, db *sql.DB) (storage.Store, error) {
	switch cfg.Sink {
	case "postgres":
		store := storage.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		store, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, nil
	}
}

func applyRuntime(rt *config.Runtime, e *engine.Engine, log *slog.Logger) {
	if rt.LogLevel != "" {
		if err := logger.SetLevel(rt.LogLevel); err != nil {
			log.Warn("invalid runtime log level", "level", rt.LogLevel, "error", err)
		} else {
			log.Info("log level changed", "level", rt.LogLevel)
		}
	}
	if rt.CacheSize > 0 {
		evicted := e.Cache().Resize(rt.CacheSize)
		log.Info("cache resized", "size", rt.CacheSize, "evicted", evicted)
	}
}
