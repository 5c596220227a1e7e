package qos

import "time"

// Grid is a uniform, ordered sequence of instants anchored at a week start.
type Grid []time.Time

// NewGrid returns duration/step instants start, start+step, ...
// A non-positive step or a duration shorter than one step yields an empty grid.
func NewGrid(start time.Time, duration, step time.Duration) Grid {
	if step <= 0 || duration < step {
		return Grid{}
	}

	n := int(duration / step)
	g := make(Grid, n)
	for k := range n {
		g[k] = start.Add(time.Duration(k) * step)
	}
	return g
}

// Seconds returns the grid as Unix seconds, the abscissa used by interpolants.
func (g Grid) Seconds() []float64 {
	xs := make([]float64, len(g))
	for i, t := range g {
		xs[i] = unixSeconds(t)
	}
	return xs
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
