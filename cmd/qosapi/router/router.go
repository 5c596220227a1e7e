// Package router configures HTTP routes for the qosapi HTTP API.
//
// Routes configured:
//   - GET /api/v1/qos/{location}/week/{week} - QoS metric for a location and week (DD.MM.YYYY)
//   - GET|HEAD /healthz, /healthcheck - Ping the curve source and result sink
//   - GET /metrics - Prometheus metrics endpoint
//
// The metric endpoint answers {"<location>": <metric>}. A missing week of data
// is a 404, a malformed week a 400; every other failure is a 500 whose cause
// is logged but not returned.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/qosmetric/pkg/engine"
	"github.com/HatiCode/qosmetric/pkg/httpx"
)

// healthTimeout bounds a health check's backend pings.
const healthTimeout = 2 * time.Second

// Engine is the subset of engine.Engine the routes need.
type Engine interface {
	ComputeCachedQoS(ctx context.Context, location, week string) (float64, error)
	RecordMetric(ctx context.Context, location, week string, metric float64) bool
	Ping(ctx context.Context) error
}

// SetupRoutes configures HTTP endpoints. requestTimeout bounds each metric
// request; zero disables it. gatherer may be nil to serve the default
// Prometheus registry.
func SetupRoutes(e Engine, requestTimeout time.Duration, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	health := httpx.HealthHandlerWithCheck(func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		return e.Ping(ctx)
	})
	mux.Handle("GET /healthz", health)
	mux.Handle("GET /healthcheck", health)

	mux.Handle("GET /api/v1/qos/{location}/week/{week}",
		httpx.TimeoutMiddleware(requestTimeout)(handleGetMetric(e, logger)))

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	mux.Handle("GET /metrics", metricsHandler)

	return httpx.Chain(mux,
		httpx.RequestID(),
		httpx.LoggingMiddleware(logger, "/healthz", "/healthcheck", "/metrics"),
		httpx.RecoveryMiddleware(logger),
	)
}

// handleGetMetric returns a handler for GET /api/v1/qos/{location}/week/{week}.
func handleGetMetric(e Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		location := r.PathValue("location")
		week := r.PathValue("week")

		metric, err := e.ComputeCachedQoS(r.Context(), location, week)
		if err != nil {
			writeComputeError(w, r, err, location, week, logger)
			return
		}

		e.RecordMetric(r.Context(), location, week, metric)

		if err := httpx.WriteJSON(w, http.StatusOK, map[string]float64{location: metric}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func writeComputeError(w http.ResponseWriter, r *http.Request, err error, location, week string, logger *slog.Logger) {
	switch {
	case engine.IsInvalid(err):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case engine.IsNotFound(err):
		httpx.WriteErrorMessage(w, http.StatusNotFound, "no data for location "+location+" and week "+week)
	default:
		logger.Error("failed to compute qos metric",
			"location", location,
			"week", week,
			"error", err,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
