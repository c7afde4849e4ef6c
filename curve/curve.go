// Package curve builds ROC and precision-recall curves from per-threshold
// metrics and integrates them.
package curve

import (
	"sort"

	"gonum.org/v1/gonum/integrate"
)

// ROC returns the ROC curve (x = FPR, y = TPR) for points sampled at
// ascending thresholds. The points are reversed so FPR grows, then padded
// with (0, 0) and (1, 1).
func ROC(fpr, tpr []float64) (x, y []float64) {
	n := min(len(fpr), len(tpr))
	x = make([]float64, 0, n+2)
	y = make([]float64, 0, n+2)
	x = append(x, 0)
	y = append(y, 0)
	for i := n - 1; i >= 0; i-- {
		x = append(x, fpr[i])
		y = append(y, tpr[i])
	}
	x = append(x, 1)
	y = append(y, 1)
	return x, y
}

// PR returns the precision-recall curve (x = recall, y = precision) sorted
// by recall and padded with (0, 1) and (1, 0). A point with zero precision
// and zero recall is read as precision 1.
func PR(recall, precision []float64) (x, y []float64) {
	n := min(len(recall), len(precision))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return recall[idx[a]] < recall[idx[b]] })

	x = make([]float64, 0, n+2)
	y = make([]float64, 0, n+2)
	x = append(x, 0)
	y = append(y, 1)
	for _, i := range idx {
		p := precision[i]
		if p == 0 && recall[i] == 0 {
			p = 1
		}
		x = append(x, recall[i])
		y = append(y, p)
	}
	x = append(x, 1)
	y = append(y, 0)
	return x, y
}

// AUC integrates y over x with the trapezoidal rule. Points are ordered by
// x first; fewer than two points give 0.
func AUC(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n < 2 {
		return 0
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	copy(xs, x[:n])
	copy(ys, y[:n])
	sort.Stable(points{xs, ys})
	return integrate.Trapezoidal(xs, ys)
}

type points struct{ x, y []float64 }

func (p points) Len() int           { return len(p.x) }
func (p points) Less(i, j int) bool { return p.x[i] < p.x[j] }
func (p points) Swap(i, j int) {
	p.x[i], p.x[j] = p.x[j], p.x[i]
	p.y[i], p.y[j] = p.y[j], p.y[i]
}
