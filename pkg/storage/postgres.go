package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OpenPostgres opens and pings a connection pool for dsn using the lib/pq
// driver. The pool is shared by the curve source and the metric store.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

const createMetricsTable = `CREATE TABLE IF NOT EXISTS public.qos_metrics (
	location    TEXT             NOT NULL,
	week_start  DATE             NOT NULL,
	qos_metric  DOUBLE PRECISION NOT NULL,
	computed_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (location, week_start)
)`

// PostgresStore implements Store on the public.qos_metrics table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open pool. The caller owns db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the qos_metrics table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createMetricsTable); err != nil {
		return fmt.Errorf("create qos_metrics table: %w", err)
	}
	return nil
}

// Put inserts rec, doing nothing if the location and week already have a
// metric.
func (p *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = time.Now().UTC()
	}

	const q = `INSERT INTO public.qos_metrics (location, week_start, qos_metric, computed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (location, week_start) DO NOTHING`

	if _, err := p.db.ExecContext(ctx, q, rec.Location, weekKey(rec.WeekStart), rec.Metric, rec.ComputedAt); err != nil {
		return fmt.Errorf("insert qos metric: %w", err)
	}
	return nil
}

// Get returns the metric recorded for location and weekStart.
func (p *PostgresStore) Get(ctx context.Context, location string, weekStart time.Time) (Record, bool, error) {
	if location == "" {
		return Record{}, false, errEmptyLocation
	}

	const q = `SELECT qos_metric, computed_at FROM public.qos_metrics
		WHERE location = $1 AND week_start = $2`

	rec := Record{Location: location, WeekStart: weekStart}
	err := p.db.QueryRowContext(ctx, q, location, weekKey(weekStart)).Scan(&rec.Metric, &rec.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("select qos metric: %w", err)
	}

	return rec, true, nil
}

// Ping checks the database connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
