// Package calibration accumulates reliability-diagram statistics over
// streamed probability predictions.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidEdges indicates bin edges that are not strictly increasing or
// define fewer than one bin.
var ErrInvalidEdges = errors.New("calibration: invalid bin edges")

// Uniform returns n+1 edges spanning [0, 1]: round(i/n, 3) for i < n,
// followed by exactly 1.
func Uniform(n int) ([]float64, error) {
	return Scaled(n, 1)
}

// Scaled returns n+1 edges spanning [0, max]: round(i/n*max, 3) for i < n,
// followed by max.
func Scaled(n int, max float64) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d bins", ErrInvalidEdges, n)
	}
	if max <= 0 {
		return nil, fmt.Errorf("%w: upper bound %g", ErrInvalidEdges, max)
	}
	edges := make([]float64, n+1)
	for i := 0; i < n; i++ {
		edges[i] = math.Round(float64(i)/float64(n)*max*1000) / 1000
	}
	edges[n] = max
	return edges, Validate(edges)
}

// Validate checks that edges hold at least two strictly increasing values.
func Validate(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("%w: need at least 2 edges, got %d", ErrInvalidEdges, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return fmt.Errorf("%w: edge %d (%g) does not exceed edge %d (%g)", ErrInvalidEdges, i, edges[i], i-1, edges[i-1])
		}
	}
	return nil
}

// Digitize returns the index i with edges[i] <= v < edges[i+1]. Values at or
// above the last edge map to len(edges)-1 and values below the first edge
// to -1.
func Digitize(edges []float64, v float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
}

// HistogramBin returns the histogram bin of v, in [0, len(edges)-2], with
// the last bin closed on the right. ok is false when v lies outside the
// edges.
func HistogramBin(edges []float64, v float64) (bin int, ok bool) {
	last := len(edges) - 1
	switch {
	case v < edges[0] || v > edges[last] || math.IsNaN(v):
		return 0, false
	case v == edges[last]:
		return last - 1, true
	}
	return Digitize(edges, v), true
}

// Histogram counts values into the bins defined by edges.
func Histogram(edges, values []float64) []float64 {
	counts := make([]float64, len(edges)-1)
	for _, v := range values {
		if b, ok := HistogramBin(edges, v); ok {
			counts[b]++
		}
	}
	return counts
}
