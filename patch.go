package segmetrics

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-segmetrics/confusion"
)

// PatchRow holds the metrics of a single sample.
type PatchRow struct {
	ID       string      `json:"id"`
	OA       float64     `json:"oa"`
	MicroIoU float64     `json:"micro_iou"`
	Macro    []float64   `json:"macro"`   // confusion.HeadlineMetricNames
	Mean     []float64   `json:"mean"`    // confusion.ReportMetricNames
	Classes  [][]float64 `json:"classes"` // per class, confusion.ReportMetricNames
}

func newPatchRow(id string, quads []confusion.Quadruple, weights []float64) (PatchRow, error) {
	sets := make([]confusion.MetricSet, len(quads))
	ms := make([]*mat.Dense, len(quads))
	for i, q := range quads {
		sets[i] = confusion.Derive(q)
		ms[i] = q.Matrix()
	}

	micro, err := confusion.WeightedSum(ms, weights)
	if err != nil {
		return PatchRow{}, err
	}
	mm := confusion.Derive(confusion.FromTwoByTwo(micro))

	row := PatchRow{
		ID:       id,
		OA:       mm.Precision,
		MicroIoU: mm.IoU,
		Macro:    classMeans(sets, confusion.HeadlineMetricNames, weights),
		Mean:     classMeans(sets, confusion.ReportMetricNames, weights),
		Classes:  make([][]float64, len(sets)),
	}
	for i, s := range sets {
		row.Classes[i] = s.ReportValues()
	}
	return row, nil
}

// classMeans returns sum(w_i * m_i) / C for every named metric, with
// w_i = 1 when weights is nil.
func classMeans(sets []confusion.MetricSet, names []string, weights []float64) []float64 {
	out := make([]float64, len(names))
	if len(sets) == 0 {
		return out
	}
	for i, s := range sets {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		for j, v := range s.Select(names) {
			out[j] += w * v
		}
	}
	for j := range out {
		out[j] /= float64(len(sets))
	}
	return out
}

// Values flattens the row in PatchColumns order.
func (r PatchRow) Values() []float64 {
	out := make([]float64, 0, 2+len(r.Macro)+len(r.Mean)+len(r.Classes)*len(confusion.ReportMetricNames))
	out = append(out, r.OA, r.MicroIoU)
	out = append(out, r.Macro...)
	out = append(out, r.Mean...)
	for _, c := range r.Classes {
		out = append(out, c...)
	}
	return out
}

// patchRowFromValues is the inverse of Values.
func patchRowFromValues(id string, vals []float64, classes int) (PatchRow, error) {
	nh, nr := len(confusion.HeadlineMetricNames), len(confusion.ReportMetricNames)
	if want := 2 + nh + nr + classes*nr; len(vals) != want {
		return PatchRow{}, fmt.Errorf("%w: sample %q has %d values, want %d", ErrIncompatiblePartial, id, len(vals), want)
	}
	row := PatchRow{
		ID:       id,
		OA:       vals[0],
		MicroIoU: vals[1],
		Macro:    vals[2 : 2+nh],
		Mean:     vals[2+nh : 2+nh+nr],
		Classes:  make([][]float64, classes),
	}
	off := 2 + nh + nr
	for c := range row.Classes {
		row.Classes[c] = vals[off+c*nr : off+(c+1)*nr]
	}
	return row, nil
}

// PatchColumns names the per-sample metric columns for the given class
// labels: OA, micro_IoU, macro_*, mean_*, then <label>_<metric> with
// spaces in labels replaced by underscores.
func PatchColumns(labels []string) []string {
	cols := []string{"OA", "micro_IoU"}
	for _, m := range confusion.HeadlineMetricNames {
		cols = append(cols, "macro_"+m)
	}
	for _, m := range confusion.ReportMetricNames {
		cols = append(cols, "mean_"+m)
	}
	for _, l := range labels {
		l = strings.ReplaceAll(l, " ", "_")
		for _, m := range confusion.ReportMetricNames {
			cols = append(cols, l+"_"+m)
		}
	}
	return cols
}
