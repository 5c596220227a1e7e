package curves

import (
	"context"
	"time"
)

// Repository supplies the curves recorded for a location and week.
//
// Implementations may block on I/O and may fail with transient errors; the
// engine propagates those without retrying. Both calls return curves in a
// stable order, and an empty slice (not an error) when nothing is recorded.
type Repository interface {
	GetInventoryCurves(ctx context.Context, location string, weekStart time.Time) ([]Curve, error)
	GetConsumptionCurves(ctx context.Context, location string, weekStart time.Time) ([]Curve, error)
}
