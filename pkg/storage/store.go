// Package storage records computed QoS metrics.
//
// A Store is the result sink of the engine. Writes are insert-if-absent: the
// first metric recorded for a (location, week) pair wins and later writes for
// the same pair are silently ignored. Three backends are provided: an
// in-process MemoryStore, a RedisStore for shared deployments and a
// PostgresStore writing the qos_metrics table.
//
// The engine only writes. Each backend also has a Get method for reading a
// record back; tests and operator tooling use it, the service does not.
package storage

import (
	"context"
	"errors"
	"time"
)

// Record is one computed metric.
type Record struct {
	Location   string    `json:"location"`
	WeekStart  time.Time `json:"week_start"`
	Metric     float64   `json:"qos_metric"`
	ComputedAt time.Time `json:"computed_at"`
}

// Store persists metric records.
type Store interface {
	// Put records r unless a record for the same location and week exists.
	Put(ctx context.Context, r Record) error
}

var errEmptyLocation = errors.New("record location cannot be empty")

func validate(r Record) error {
	if r.Location == "" {
		return errEmptyLocation
	}
	if r.WeekStart.IsZero() {
		return errors.New("record week start cannot be zero")
	}
	return nil
}

// weekKey normalizes a week start to its calendar date.
func weekKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
