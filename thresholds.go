package segmetrics

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SweepThresholds returns n evenly spaced thresholds over [0, 1], both ends
// included, with the operating threshold added when it is not one of them.
// The result is ascending.
func SweepThresholds(n int, operating float64) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: threshold count %d", ErrInvalidConfig, n)
	}
	var ts []float64
	if n == 1 {
		ts = []float64{operating}
	} else {
		ts = floats.Span(make([]float64, n), 0, 1)
	}
	return withOperating(ts, operating)
}

// withOperating validates ts, inserts the operating threshold and sorts.
func withOperating(ts []float64, operating float64) ([]float64, error) {
	if err := checkProbability("threshold", operating); err != nil {
		return nil, err
	}
	out := slices.Clone(ts)
	for _, t := range out {
		if err := checkProbability("threshold", t); err != nil {
			return nil, err
		}
	}
	if !slices.Contains(out, operating) {
		out = append(out, operating)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func checkProbability(what string, v float64) error {
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("%w: %s %g outside [0, 1]", ErrInvalidConfig, what, v)
	}
	return nil
}
