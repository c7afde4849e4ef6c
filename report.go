package segmetrics

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-segmetrics/confusion"
)

// Row is a named row of a Table.
type Row struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Table is a plain metric table, one value per column in every row.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Row returns the row called name.
func (t Table) Row(name string) (Row, bool) {
	for _, r := range t.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// Value returns the cell at row and column.
func (t Table) Value(row, column string) (float64, bool) {
	r, ok := t.Row(row)
	if !ok {
		return 0, false
	}
	i := slices.Index(t.Columns, column)
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	return r.Values[i], true
}

// Column returns every row's value in column, in row order.
func (t Table) Column(column string) []float64 {
	i := slices.Index(t.Columns, column)
	if i < 0 {
		return nil
	}
	out := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r.Values[i])
	}
	return out
}

// Row names used in the report tables.
const (
	RowOverall         = "Overall"
	RowAverage         = "Average"
	RowWeightedAvg     = "Weighted avg"
	RowUserWeightedAvg = "User weighted avg"
	RowValues          = "Values"
)

// ColumnOA is the overall-accuracy column of the micro table.
const ColumnOA = "OA"

// ClassCurve holds the ROC and precision-recall points of one class,
// sampled at the ascending threshold set.
type ClassCurve struct {
	Class      string    `json:"class"`
	Thresholds []float64 `json:"thresholds"`
	Recall     []float64 `json:"recall"`
	FPR        []float64 `json:"fpr"`
	Precision  []float64 `json:"precision"`
	ROCAUC     float64   `json:"roc_auc"`
	PRAUC      float64   `json:"pr_auc"`
}

// ClassCalibration holds the reliability diagram of one class.
type ClassCalibration struct {
	Class             string    `json:"class"`
	Bins              []int     `json:"bins"`
	ProbTrue          []float64 `json:"prob_true"`
	ProbPred          []float64 `json:"prob_pred"`
	Counts            []float64 `json:"counts"`
	Histogram         []float64 `json:"histogram"`
	HistogramFraction []float64 `json:"histogram_fraction"`
	ECE               float64   `json:"ece"`
}

// MetricHistogram counts per-sample values of one metric over the
// calibration edges.
type MetricHistogram struct {
	Metric string    `json:"metric"`
	Counts []float64 `json:"counts"`
}

// Report is the result of a scan. Optional parts are nil when disabled.
type Report struct {
	RunID      string         `json:"run_id"`
	Mode       confusion.Mode `json:"mode"`
	Labels     []string       `json:"labels"`
	Threshold  float64        `json:"threshold"`
	Thresholds []float64      `json:"thresholds"`
	Edges      []float64      `json:"edges"`
	Samples    int            `json:"samples"`

	// Classes has one row per class plus the Overall mean.
	Classes Table `json:"classes"`
	// Macro has the Average, Weighted avg and, with class weights, the
	// User weighted avg rows over the headline metrics.
	Macro Table `json:"macro"`
	// Micro has the overall accuracy and IoU of the summed class matrices.
	Micro Table `json:"micro"`
	// Values is the binary metric row at the operating threshold.
	Values *Table `json:"values,omitempty"`
	// ThresholdMetrics has one binary metric row per threshold.
	ThresholdMetrics *Table `json:"threshold_metrics,omitempty"`

	JointMatrix             *mat.Dense   `json:"-"`
	NormalizedJointMatrix   *mat.Dense   `json:"-"`
	ClassMatrices           []*mat.Dense `json:"-"`
	NormalizedClassMatrices []*mat.Dense `json:"-"`
	MicroMatrix             *mat.Dense   `json:"-"`

	PatchColumns     []string           `json:"patch_columns,omitempty"`
	Patches          []PatchRow         `json:"patches,omitempty"`
	PatchSummary     *Table             `json:"patch_summary,omitempty"`
	MetricHistograms []MetricHistogram  `json:"metric_histograms,omitempty"`
	Curves           []ClassCurve       `json:"curves,omitempty"`
	Calibration      []ClassCalibration `json:"calibration,omitempty"`
}

// ClassLabels returns the labels of the classes the tables report on. In
// binary mode that is only the positive class.
func (r *Report) ClassLabels() []string {
	if r.Mode == confusion.Binary && len(r.Labels) == 2 {
		return r.Labels[1:]
	}
	return r.Labels
}
