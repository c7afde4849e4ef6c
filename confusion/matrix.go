// Package confusion builds confusion matrices from hard labels, splits them
// into per-class observation counts and derives classification metrics.
package confusion

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrLengthMismatch indicates that true and predicted labels differ in length.
	ErrLengthMismatch = errors.New("confusion: label slices differ in length")

	// ErrLabelOutOfRange indicates a label outside [0, n).
	ErrLabelOutOfRange = errors.New("confusion: label out of range")
)

// Build counts co-occurrences of true and predicted labels into an n×n
// matrix. Rows are true classes, columns predicted classes.
//
// With revertOrder the class order is reversed on both axes. For the
// one-vs-rest case (labels in {0, 1}, 1 positive) the result then reads
// [[tp, fn], [fp, tn]].
func Build(yTrue, yPred []int, n int, revertOrder bool) (*mat.Dense, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%w: %d true, %d predicted", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: %d classes", ErrLabelOutOfRange, n)
	}

	counts := make([]float64, n*n)
	for k, t := range yTrue {
		p := yPred[k]
		if t < 0 || t >= n || p < 0 || p >= n {
			return nil, fmt.Errorf("%w: pair (%d, %d) at %d with %d classes", ErrLabelOutOfRange, t, p, k, n)
		}
		if revertOrder {
			t, p = n-1-t, n-1-p
		}
		counts[t*n+p]++
	}

	return mat.NewDense(n, n, counts), nil
}

// Total returns the sum of all entries, i.e. the number of observations.
func Total(cm mat.Matrix) float64 {
	return mat.Sum(cm)
}

// Normalize returns a copy of cm whose rows sum to one. Rows without
// observations stay zero.
func Normalize(cm mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(cm)
	r, _ := out.Dims()
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		s := floats.Sum(row)
		if s == 0 {
			continue
		}
		floats.Scale(1/s, row)
	}
	return out
}

// WeightedSum adds the matrices together, scaling matrix i by weights[i].
// A nil weights slice sums them unweighted.
func WeightedSum(ms []*mat.Dense, weights []float64) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, errors.New("confusion: no matrices to sum")
	}
	if weights != nil && len(weights) != len(ms) {
		return nil, fmt.Errorf("confusion: %d weights for %d matrices", len(weights), len(ms))
	}

	r, c := ms[0].Dims()
	out := mat.NewDense(r, c, nil)
	for i, m := range ms {
		if mr, mc := m.Dims(); mr != r || mc != c {
			return nil, fmt.Errorf("confusion: matrix %d is %dx%d, want %dx%d", i, mr, mc, r, c)
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		out.Apply(func(row, col int, v float64) float64 {
			return v + w*m.At(row, col)
		}, out)
	}
	return out, nil
}

// Rows copies a matrix into a slice of rows, for encoders that do not
// understand gonum types.
func Rows(m mat.Matrix) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
