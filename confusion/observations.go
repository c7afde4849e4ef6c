package confusion

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Quadruple holds the one-vs-rest observation counts of a single class.
type Quadruple struct {
	TP, FN, FP, TN float64
}

// Total returns TP+FN+FP+TN.
func (q Quadruple) Total() float64 {
	return q.TP + q.FN + q.FP + q.TN
}

// Add returns the element-wise sum of q and o.
func (q Quadruple) Add(o Quadruple) Quadruple {
	return Quadruple{
		TP: q.TP + o.TP,
		FN: q.FN + o.FN,
		FP: q.FP + o.FP,
		TN: q.TN + o.TN,
	}
}

// Matrix returns the 2×2 matrix [[tp, fn], [fp, tn]].
func (q Quadruple) Matrix() *mat.Dense {
	return mat.NewDense(2, 2, []float64{q.TP, q.FN, q.FP, q.TN})
}

// FromTwoByTwo reads a reversed-order one-vs-rest matrix, laid out as
// [[tp, fn], [fp, tn]].
func FromTwoByTwo(cm mat.Matrix) Quadruple {
	return Quadruple{
		TP: cm.At(0, 0),
		FN: cm.At(0, 1),
		FP: cm.At(1, 0),
		TN: cm.At(1, 1),
	}
}

// QuadrupleOf extracts the observations of class i from a square
// confusion matrix with true classes on rows.
func QuadrupleOf(cm mat.Matrix, i int) Quadruple {
	tp := cm.At(i, i)
	rowSum := floats.Sum(mat.Row(nil, i, cm))
	colSum := floats.Sum(mat.Col(nil, i, cm))
	return Quadruple{
		TP: tp,
		FN: rowSum - tp,
		FP: colSum - tp,
		TN: mat.Sum(cm) - rowSum - colSum + tp,
	}
}

// Quadruples extracts the observations of every class of cm.
func Quadruples(cm mat.Matrix) []Quadruple {
	n, _ := cm.Dims()
	out := make([]Quadruple, n)
	for i := range out {
		out[i] = QuadrupleOf(cm, i)
	}
	return out
}
