package qos

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// ConsumptionCDF evaluates a consumption profile on the grid and normalizes
// its running sum by the weekly total, giving the fraction of demand elapsed
// by each instant. The result is non-decreasing and ends at 1.
func ConsumptionCDF(profile curves.Curve, grid Grid) ([]float64, error) {
	ip, err := FromCurve(profile, ClampToZero)
	if err != nil {
		return nil, fmt.Errorf("consumption curve %q: %w", profile.Product, err)
	}

	raw := ip.Resample(grid.Seconds())
	total := floats.Sum(raw)

	switch {
	case total == 0:
		return nil, fmt.Errorf("consumption profile %q sums to zero: %w", profile.Product, ErrNoData)
	case total < 0 || math.IsNaN(total) || math.IsInf(total, 0):
		return nil, fmt.Errorf("consumption profile %q has invalid total %v: %w", profile.Product, total, ErrComputation)
	}

	cdf := floats.CumSum(make([]float64, len(raw)), raw)
	for i := range cdf {
		cdf[i] /= total
	}

	if !sort.Float64sAreSorted(cdf) {
		return nil, fmt.Errorf("consumption profile %q has negative demand: %w", profile.Product, ErrComputation)
	}
	return cdf, nil
}
