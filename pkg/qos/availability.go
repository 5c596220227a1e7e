package qos

import (
	"fmt"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// Availability returns, for every grid instant, the fraction of inventory
// curves with a positive interpolated level. Curves are evaluated with
// ClampToZero, so a product without samples around an instant counts as out
// of stock.
func Availability(inventory []curves.Curve, grid Grid) ([]float64, error) {
	if len(inventory) == 0 {
		return nil, fmt.Errorf("no inventory data: %w", ErrNoData)
	}

	xs := grid.Seconds()
	available := make([]int, len(xs))
	total := make([]int, len(xs))

	for _, c := range inventory {
		ip, err := FromCurve(c, ClampToZero)
		if err != nil {
			return nil, fmt.Errorf("inventory curve %q: %w", c.Product, err)
		}
		for i, x := range xs {
			if ip.At(x) > 0 {
				available[i]++
			}
			total[i]++
		}
	}

	ratios := make([]float64, len(xs))
	for i := range xs {
		ratios[i] = float64(available[i]) / float64(total[i])
	}
	return ratios, nil
}
