package qos

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
)

// Integrate computes the integral of availability with respect to the
// cumulative consumption, i.e. the demand-weighted mean availability.
//
// Availability is first re-fitted on its own grid with Extrapolate and
// resampled, so the integrand is always defined at the grid boundaries.
func Integrate(grid Grid, availability, cdf []float64) (float64, error) {
	if len(grid) < 2 {
		return 0, fmt.Errorf("grid has %d points, need at least 2: %w", len(grid), ErrNoData)
	}
	if len(availability) != len(grid) || len(cdf) != len(grid) {
		return 0, fmt.Errorf("profiles misaligned with grid (grid=%d availability=%d cdf=%d): %w",
			len(grid), len(availability), len(cdf), ErrComputation)
	}
	if !sort.Float64sAreSorted(cdf) {
		return 0, fmt.Errorf("cumulative consumption is not non-decreasing: %w", ErrComputation)
	}

	xs := grid.Seconds()
	ip, err := NewInterpolant(xs, availability, Extrapolate)
	if err != nil {
		return 0, fmt.Errorf("refit availability: %w", err)
	}

	return integrate.Trapezoidal(cdf, ip.Resample(xs)), nil
}
