package sources

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// The two curve kinds differ only in which products column references the
// curves table.
const (
	inventoryCurvesQuery = `SELECT DISTINCT p.product, c.week_start, c.x, c.y
		FROM public.products AS p
		INNER JOIN public.curves AS c ON p.inventory_curve_id = c.curve_id
		WHERE p.location = $1 AND c.week_start = $2
		ORDER BY p.product`

	consumptionCurvesQuery = `SELECT DISTINCT p.product, c.week_start, c.x, c.y
		FROM public.products AS p
		INNER JOIN public.curves AS c ON p.consumption_profile_curve_id = c.curve_id
		WHERE p.location = $1 AND c.week_start = $2
		ORDER BY p.product`
)

// PostgresRepository reads curves from the products and curves tables.
//
// Each curve row stores its offsets in an integer array column x and its
// values in a double precision array column y.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open pool. The caller owns db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetInventoryCurves returns the inventory curve of every product stocked at
// location during the week starting at weekStart, ordered by product.
func (r *PostgresRepository) GetInventoryCurves(ctx context.Context, location string, weekStart time.Time) ([]curves.Curve, error) {
	return r.query(ctx, inventoryCurvesQuery, location, weekStart)
}

// GetConsumptionCurves returns the consumption profile curves for location
// and week, ordered by product.
func (r *PostgresRepository) GetConsumptionCurves(ctx context.Context, location string, weekStart time.Time) ([]curves.Curve, error) {
	return r.query(ctx, consumptionCurvesQuery, location, weekStart)
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) query(ctx context.Context, q, location string, weekStart time.Time) ([]curves.Curve, error) {
	rows, err := r.db.QueryContext(ctx, q, location, weekStart.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query curves: %w", err)
	}
	defer rows.Close()

	var out []curves.Curve
	for rows.Next() {
		var (
			product string
			week    time.Time
			xs      pq.Int64Array
			ys      pq.Float64Array
		)
		if err := rows.Scan(&product, &week, &xs, &ys); err != nil {
			return nil, fmt.Errorf("scan curve: %w", err)
		}

		offsets := make([]int, len(xs))
		for i, x := range xs {
			offsets[i] = int(x)
		}

		weekUTC := time.Date(week.Year(), week.Month(), week.Day(), 0, 0, 0, 0, time.UTC)
		c, err := curves.New(product, weekUTC, offsets, ys)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate curves: %w", err)
	}

	return out, nil
}
