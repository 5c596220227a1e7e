package qos

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/HatiCode/qosmetric/pkg/curves"
)

// Policy selects how an Interpolant answers queries outside its samples.
type Policy int

const (
	// ClampToZero evaluates to 0 outside the sampled domain: no data means
	// no inventory and no demand.
	ClampToZero Policy = iota

	// Extrapolate continues the nearest boundary segment linearly.
	Extrapolate
)

func (p Policy) String() string {
	switch p {
	case ClampToZero:
		return "clamp-to-zero"
	case Extrapolate:
		return "extrapolate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Interpolant is a piecewise linear function through a set of samples.
// It is safe for concurrent reads.
type Interpolant struct {
	xs     []float64
	ys     []float64
	policy Policy
	fit    interp.PiecewiseLinear
}

// NewInterpolant fits xs/ys. xs must be strictly increasing and hold at least
// two points; violations are reported as curves.ErrMalformedCurve.
func NewInterpolant(xs, ys []float64, policy Policy) (*Interpolant, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d abscissae but %d values", curves.ErrMalformedCurve, len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, got %d", curves.ErrMalformedCurve, len(xs))
	}
	for i := 1; i < len(xs); i++ {
		// Negated comparison also rejects NaN.
		if !(xs[i] > xs[i-1]) {
			return nil, fmt.Errorf("%w: abscissae not strictly increasing at index %d", curves.ErrMalformedCurve, i)
		}
	}

	ip := &Interpolant{xs: xs, ys: ys, policy: policy}
	if err := ip.fit.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", curves.ErrMalformedCurve, err)
	}
	return ip, nil
}

// FromCurve fits the samples of c placed at their absolute instants.
func FromCurve(c curves.Curve, policy Policy) (*Interpolant, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ts := c.Timestamps()
	xs := make([]float64, len(ts))
	for i, t := range ts {
		xs[i] = unixSeconds(t)
	}

	return NewInterpolant(xs, c.Values(), policy)
}

// At evaluates the interpolant at x (Unix seconds).
func (ip *Interpolant) At(x float64) float64 {
	n := len(ip.xs)

	switch {
	case math.IsNaN(x):
		return math.NaN()
	case x < ip.xs[0]:
		if ip.policy == ClampToZero {
			return 0
		}
		return line(ip.xs[0], ip.ys[0], ip.xs[1], ip.ys[1], x)
	case x > ip.xs[n-1]:
		if ip.policy == ClampToZero {
			return 0
		}
		return line(ip.xs[n-2], ip.ys[n-2], ip.xs[n-1], ip.ys[n-1], x)
	}

	return ip.fit.Predict(x)
}

// AtTime evaluates the interpolant at instant t.
func (ip *Interpolant) AtTime(t time.Time) float64 {
	return ip.At(unixSeconds(t))
}

// Resample evaluates the interpolant at every point of xs.
func (ip *Interpolant) Resample(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = ip.At(x)
	}
	return out
}

func line(x0, y0, x1, y1, x float64) float64 {
	return y0 + (y1-y0)/(x1-x0)*(x-x0)
}
