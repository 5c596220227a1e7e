// Package curves defines the sparse weekly time series consumed by the QoS
// engine and the contract of the sources that supply them.
//
// A Curve is anchored to the start of a calendar week. Each sample carries an
// offset in minutes since that start and a value (an inventory level or a
// consumption rate, depending on where the curve came from).
package curves

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinutesPerWeek is the exclusive upper bound of a sample offset.
const MinutesPerWeek = 7 * 24 * 60

// WeekLayout is the fixed DD.MM.YYYY layout used for week identifiers.
const WeekLayout = "02.01.2006"

var (
	// ErrMalformedCurve marks a curve whose samples cannot be interpolated.
	ErrMalformedCurve = errors.New("malformed curve")

	// ErrInvalidWeek marks a week identifier that is not in DD.MM.YYYY form.
	ErrInvalidWeek = errors.New("invalid week")
)

// Sample is a single observation of a curve.
type Sample struct {
	Offset int // minutes since week start, in [0, MinutesPerWeek)
	Value  float64
}

// Curve is an immutable, sparse time series for one product and one week.
type Curve struct {
	Product   string
	WeekStart time.Time
	Samples   []Sample
}

// New builds a Curve from parallel offset and value slices, the shape in
// which sources usually hold them.
func New(product string, weekStart time.Time, offsets []int, values []float64) (Curve, error) {
	if len(offsets) != len(values) {
		return Curve{}, fmt.Errorf("%w: product %q has %d offsets but %d values",
			ErrMalformedCurve, product, len(offsets), len(values))
	}

	samples := make([]Sample, len(offsets))
	for i := range offsets {
		samples[i] = Sample{Offset: offsets[i], Value: values[i]}
	}

	return Curve{Product: product, WeekStart: weekStart, Samples: samples}, nil
}

// Validate checks the curve invariants: at least one sample, offsets inside
// the week and strictly increasing.
func (c Curve) Validate() error {
	if len(c.Samples) == 0 {
		return fmt.Errorf("%w: product %q has no samples", ErrMalformedCurve, c.Product)
	}

	for i, s := range c.Samples {
		if s.Offset < 0 || s.Offset >= MinutesPerWeek {
			return fmt.Errorf("%w: product %q offset %d out of range [0, %d)",
				ErrMalformedCurve, c.Product, s.Offset, MinutesPerWeek)
		}
		if i > 0 && s.Offset <= c.Samples[i-1].Offset {
			return fmt.Errorf("%w: product %q offsets not strictly increasing at index %d",
				ErrMalformedCurve, c.Product, i)
		}
	}

	return nil
}

// Timestamps returns the absolute instant of every sample.
func (c Curve) Timestamps() []time.Time {
	ts := make([]time.Time, len(c.Samples))
	for i, s := range c.Samples {
		ts[i] = c.WeekStart.Add(time.Duration(s.Offset) * time.Minute)
	}
	return ts
}

// Values returns the sample values in order.
func (c Curve) Values() []float64 {
	vs := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		vs[i] = s.Value
	}
	return vs
}

// ParseWeek parses a DD.MM.YYYY week identifier into UTC midnight of that day.
func ParseWeek(week string) (time.Time, error) {
	t, err := time.ParseInLocation(WeekLayout, strings.TrimSpace(week), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected DD.MM.YYYY", ErrInvalidWeek, week)
	}
	return t, nil
}

// FormatWeek renders t as a DD.MM.YYYY week identifier.
func FormatWeek(t time.Time) string {
	return t.Format(WeekLayout)
}
