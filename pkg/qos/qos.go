// Package qos computes the weekly Quality-of-Service metric of a location.
//
// The metric answers "how available were products when customers wanted
// them". The pipeline is:
//
//	grid → availability(inventory curves) ┐
//	     → cumulative consumption(profile) ┴→ ∫ availability d(consumption)
//
// Inventory curves are reduced to the fraction of products in stock at each
// grid instant. The consumption profile becomes a CDF over the week. The
// trapezoidal integral of the former over the latter is 1.0 when every unit
// of demand met full availability and approaches 0 as stockouts coincide
// with demand peaks.
//
// Everything here is pure and synchronous; callers may run computations
// concurrently.
package qos

import (
	"fmt"
	"math"
	"time"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

const (
	// DefaultDuration is the span of the evaluation grid: one week.
	DefaultDuration = 7 * 24 * time.Hour

	// DefaultStep is the resolution of the evaluation grid.
	DefaultStep = time.Minute
)

// Calculator evaluates the metric on a grid of Duration/Step points.
// The zero value uses DefaultDuration and DefaultStep.
type Calculator struct {
	Duration time.Duration
	Step     time.Duration
}

// ComputeQoS returns the metric for the given inventory and consumption
// curves.
//
// The grid is anchored at the week start of the first inventory curve. Only
// the first consumption curve is used when several are supplied.
func (c Calculator) ComputeQoS(inventory, consumption []curves.Curve) (float64, error) {
	if len(inventory) == 0 {
		return 0, fmt.Errorf("no inventory data: %w", ErrNoData)
	}
	if len(consumption) == 0 {
		return 0, fmt.Errorf("no consumption data: %w", ErrNoData)
	}

	grid := NewGrid(inventory[0].WeekStart, c.duration(), c.step())

	availability, err := Availability(inventory, grid)
	if err != nil {
		return 0, err
	}

	cdf, err := ConsumptionCDF(consumption[0], grid)
	if err != nil {
		return 0, err
	}

	metric, err := Integrate(grid, availability, cdf)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(metric) || math.IsInf(metric, 0) {
		return 0, fmt.Errorf("metric is not finite: %w", ErrComputation)
	}
	return metric, nil
}

// ComputeQoS evaluates the metric with the default one-week, one-minute grid.
func ComputeQoS(inventory, consumption []curves.Curve) (float64, error) {
	return Calculator{}.ComputeQoS(inventory, consumption)
}

func (c Calculator) duration() time.Duration {
	if c.Duration <= 0 {
		return DefaultDuration
	}
	return c.Duration
}

func (c Calculator) step() time.Duration {
	if c.Step <= 0 {
		return DefaultStep
	}
	return c.Step
}
