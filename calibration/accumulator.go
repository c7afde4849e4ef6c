package calibration

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Accumulator collects calibration statistics for one class.
//
// Sums, True and Counts have one slot per edge (B+1): a prediction v lands
// in Digitize(edges, v), so values at or above the last edge share the
// final slot. Histogram has B slots with the last bin closed.
type Accumulator struct {
	Edges     []float64
	Sums      []float64
	True      []float64
	Counts    []float64
	Histogram []float64
}

// NewAccumulator returns an empty accumulator over edges.
func NewAccumulator(edges []float64) (*Accumulator, error) {
	if err := Validate(edges); err != nil {
		return nil, err
	}
	n := len(edges)
	return &Accumulator{
		Edges:     slices.Clone(edges),
		Sums:      make([]float64, n),
		True:      make([]float64, n),
		Counts:    make([]float64, n),
		Histogram: make([]float64, n-1),
	}, nil
}

// Add folds one sample into the accumulator. pred holds probabilities and
// truth the matching hard labels (1 positive, 0 negative). Predictions
// below the first edge are not binned.
func (a *Accumulator) Add(pred []float32, truth []int) error {
	if len(pred) != len(truth) {
		return fmt.Errorf("calibration: %d predictions, %d labels", len(pred), len(truth))
	}
	for i, p := range pred {
		v := float64(p)
		if b, ok := HistogramBin(a.Edges, v); ok {
			a.Histogram[b]++
		}
		id := Digitize(a.Edges, v)
		if id < 0 {
			continue
		}
		a.Sums[id] += v
		a.True[id] += float64(truth[i])
		a.Counts[id]++
	}
	return nil
}

// Merge adds the contents of o. Both accumulators must share edges.
func (a *Accumulator) Merge(o *Accumulator) error {
	if !slices.Equal(a.Edges, o.Edges) {
		return fmt.Errorf("%w: merging accumulators with different edges", ErrInvalidEdges)
	}
	floats.Add(a.Sums, o.Sums)
	floats.Add(a.True, o.True)
	floats.Add(a.Counts, o.Counts)
	floats.Add(a.Histogram, o.Histogram)
	return nil
}

// Curve is a reliability diagram. Bins lists the accumulator slots that
// received at least one prediction.
type Curve struct {
	Bins     []int
	ProbTrue []float64
	ProbPred []float64
	Counts   []float64
}

// Curve returns the fraction of positives and the mean prediction of every
// non-empty slot.
func (a *Accumulator) Curve() Curve {
	var c Curve
	for i, n := range a.Counts {
		if n == 0 {
			continue
		}
		c.Bins = append(c.Bins, i)
		c.ProbTrue = append(c.ProbTrue, a.True[i]/n)
		c.ProbPred = append(c.ProbPred, a.Sums[i]/n)
		c.Counts = append(c.Counts, n)
	}
	return c
}

// ECE returns the expected calibration error, the count-weighted mean gap
// between predicted and observed frequencies.
func (c Curve) ECE() float64 {
	total := floats.Sum(c.Counts)
	if total == 0 {
		return 0
	}
	var gap float64
	for i, n := range c.Counts {
		gap += n * math.Abs(c.ProbTrue[i]-c.ProbPred[i])
	}
	return gap / total
}

// HistogramFractions returns the histogram divided by total. A zero total
// yields zeros.
func (a *Accumulator) HistogramFractions(total float64) []float64 {
	out := make([]float64, len(a.Histogram))
	if total == 0 {
		return out
	}
	copy(out, a.Histogram)
	floats.Scale(1/total, out)
	return out
}
