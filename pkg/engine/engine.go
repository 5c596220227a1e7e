// Package engine ties the QoS computation to its data source, its cache and
// its result sink.
//
// The request path is:
//
//	validate week → cache lookup → (miss) fetch inventory → fetch consumption → compute
//
// A successful metric is cached per (location, week); failures are returned to
// every waiting caller and retried on the next request. Recording to the sink
// is a separate, best-effort step driven by the transport layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/qosmetric/pkg/cache"
	"github.com/HatiCode/qosmetric/pkg/curves"
	"github.com/HatiCode/qosmetric/pkg/qos"
	"github.com/HatiCode/qosmetric/pkg/storage"
)

// Metrics receives timings and outcomes. A type that also implements
// cache.Observer is wired to the cache as well.
type Metrics interface {
	RecordFetch(seconds float64)
	RecordCompute(seconds float64)
	RecordSinkWrite(outcome string)
	RecordError(component, reason string)
}

// Engine computes cached QoS metrics. It is safe for concurrent use.
type Engine struct {
	repo    curves.Repository
	sink    storage.Store
	calc    qos.Calculator
	cache   *cache.Cache
	logger  *slog.Logger
	metrics Metrics
}

// New creates an Engine. sink and metrics may be nil; cacheSize <= 0 selects
// cache.DefaultSize.
func New(
	repo curves.Repository,
	sink storage.Store,
	calc qos.Calculator,
	cacheSize int,
	logger *slog.Logger,
	metrics Metrics,
) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("curve repository cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		repo:    repo,
		sink:    sink,
		calc:    calc,
		logger:  logger,
		metrics: metrics,
	}

	var observer cache.Observer
	if o, ok := metrics.(cache.Observer); ok {
		observer = o
	}

	c, err := cache.New(cacheSize, e.compute, observer)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	e.cache = c

	return e, nil
}

// ComputeCachedQoS returns the QoS metric of location for the week given as
// DD.MM.YYYY, computing it at most once per key among concurrent callers.
//
// Errors can be classified with IsInvalid and IsNotFound; anything else is
// an internal failure.
func (e *Engine) ComputeCachedQoS(ctx context.Context, location, week string) (float64, error) {
	weekStart, err := curves.ParseWeek(week)
	if err != nil {
		e.recordError("engine", "invalid_week")
		return 0, err
	}

	return e.cache.Get(ctx, location, curves.FormatWeek(weekStart))
}

// RecordMetric writes metric to the sink. Failures are logged and counted,
// never returned; the result reports whether the write succeeded.
func (e *Engine) RecordMetric(ctx context.Context, location, week string, metric float64) bool {
	if e.sink == nil {
		return false
	}

	weekStart, err := curves.ParseWeek(week)
	if err != nil {
		e.logger.Warn("not recording metric", "location", location, "week", week, "error", err)
		return false
	}

	rec := storage.Record{
		Location:   location,
		WeekStart:  weekStart,
		Metric:     metric,
		ComputedAt: time.Now().UTC(),
	}
	if err := e.sink.Put(ctx, rec); err != nil {
		e.logger.Error("failed to record qos metric", "location", location, "week", week, "error", err)
		e.recordError("sink", "put_failed")
		if e.metrics != nil {
			e.metrics.RecordSinkWrite("error")
		}
		return false
	}

	if e.metrics != nil {
		e.metrics.RecordSinkWrite("ok")
	}
	return true
}

// Cache exposes the underlying cache for stats and runtime resizing.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Ping checks the curve repository and the sink when they support it.
func (e *Engine) Ping(ctx context.Context) error {
	if p, ok := e.repo.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("curve source: %w", err)
		}
	}
	if p, ok := e.sink.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("result sink: %w", err)
		}
	}
	return nil
}

// compute is the cache's ComputeFunc. week is already normalized.
func (e *Engine) compute(ctx context.Context, location, week string) (float64, error) {
	weekStart, err := curves.ParseWeek(week)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	e.logger.Debug("computing qos metric", "location", location, "week", week)

	inventory, err := e.repo.GetInventoryCurves(ctx, location, weekStart)
	if err != nil {
		e.recordError("repository", "inventory_failed")
		return 0, fmt.Errorf("fetch inventory curves: %w", err)
	}

	consumption, err := e.repo.GetConsumptionCurves(ctx, location, weekStart)
	if err != nil {
		e.recordError("repository", "consumption_failed")
		return 0, fmt.Errorf("fetch consumption curves: %w", err)
	}

	fetched := time.Now()
	if e.metrics != nil {
		e.metrics.RecordFetch(fetched.Sub(start).Seconds())
	}

	metric, err := e.calc.ComputeQoS(inventory, consumption)
	if e.metrics != nil {
		e.metrics.RecordCompute(time.Since(fetched).Seconds())
	}
	if err != nil {
		if IsNotFound(err) {
			e.recordError("qos", "no_data")
		} else {
			e.recordError("qos", "computation_failed")
		}
		return 0, fmt.Errorf("compute qos for %s week %s: %w", location, week, err)
	}

	e.logger.Info("computed qos metric",
		"location", location,
		"week", week,
		"metric", metric,
		"inventory_curves", len(inventory),
		"consumption_curves", len(consumption),
		"duration", time.Since(start),
	)

	return metric, nil
}

func (e *Engine) recordError(component, reason string) {
	if e.metrics != nil {
		e.metrics.RecordError(component, reason)
	}
}

// IsNotFound reports whether err means there was no data for the location
// and week.
func IsNotFound(err error) bool {
	return errors.Is(err, qos.ErrNoData)
}

// IsInvalid reports whether err stems from a malformed week identifier.
func IsInvalid(err error) bool {
	return errors.Is(err, curves.ErrInvalidWeek)
}
