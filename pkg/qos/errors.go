package qos

import "errors"

var (
	// ErrNoData reports that the inputs carry no usable signal: no curves for
	// the location and week, or a consumption profile that sums to zero.
	ErrNoData = errors.New("no data found for the specified location and week")

	// ErrComputation reports inputs that are present but inconsistent, such as
	// misaligned profiles or a decreasing cumulative consumption.
	ErrComputation = errors.New("qos computation failed")
)
