package segmetrics

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/jamesainslie/go-segmetrics/calibration"
	"github.com/jamesainslie/go-segmetrics/confusion"
	"github.com/jamesainslie/go-segmetrics/curve"
)

// finalize turns the accumulated sums into a report. The accumulator is
// frozen afterwards.
func (e *Evaluator) finalize(a *accumulator) (*Report, error) {
	if a.state >= stateFinalizing {
		return nil, fmt.Errorf("%w: finalizing in state %v", ErrFinalized, a.state)
	}
	if a.samples == 0 {
		return nil, ErrEmptyDataset
	}
	a.state = stateFinalizing

	labels := a.classLabels()
	quads := a.quadruples()

	r := &Report{
		RunID:      uuid.NewString(),
		Mode:       a.mode,
		Labels:     slices.Clone(a.labels),
		Threshold:  a.threshold(),
		Thresholds: slices.Clone(a.thresholds),
		Edges:      slices.Clone(a.edges),
		Samples:    a.samples,
	}

	tables, err := aggregate(labels, quads, a.positives, a.weights)
	if err != nil {
		return nil, err
	}
	r.Classes, r.Macro, r.Micro = tables.classes, tables.macro, tables.micro
	r.ClassMatrices, r.MicroMatrix = tables.classMatrices, tables.microMatrix
	r.JointMatrix = a.joint

	if a.mode == confusion.Binary {
		r.Values, r.ThresholdMetrics = binaryTables(a)
	}

	if e.cfg.normalize {
		if r.JointMatrix != nil {
			r.NormalizedJointMatrix = confusion.Normalize(r.JointMatrix)
		}
		for _, m := range r.ClassMatrices {
			r.NormalizedClassMatrices = append(r.NormalizedClassMatrices, confusion.Normalize(m))
		}
	}

	if e.cfg.curves {
		r.Curves = classCurves(a, labels)
	}
	if a.withCalibration {
		r.Calibration = classCalibrations(a, labels)
	}

	if a.patchMetrics {
		r.PatchColumns = PatchColumns(labels)
		r.Patches = a.patches
		if r.PatchSummary, err = patchSummary(r.PatchColumns, a.patches); err != nil {
			return nil, err
		}
		if e.cfg.metricHistograms {
			r.MetricHistograms = metricHistograms(r.PatchColumns, a.patches, a.edges)
		}
	}

	a.state = stateDone
	return r, nil
}

type aggregateTables struct {
	classes       Table
	macro         Table
	micro         Table
	classMatrices []*mat.Dense
	microMatrix   *mat.Dense
}

// aggregate builds the per-class, macro and micro tables from per-class
// observations. positives holds the number of positive mask pixels of
// every class and weights the optional user weights.
func aggregate(labels []string, quads []confusion.Quadruple, positives, weights []float64) (aggregateTables, error) {
	var out aggregateTables
	sets := make([]confusion.MetricSet, len(quads))
	for i, q := range quads {
		sets[i] = confusion.Derive(q)
		out.classMatrices = append(out.classMatrices, q.Matrix())
	}

	out.classes = Table{Columns: slices.Clone(confusion.ReportMetricNames)}
	for i, s := range sets {
		out.classes.Rows = append(out.classes.Rows, Row{Name: labels[i], Values: s.ReportValues()})
	}
	overall := make([]float64, len(confusion.ReportMetricNames))
	for j, name := range confusion.ReportMetricNames {
		overall[j] = stat.Mean(out.classes.Column(name), nil)
	}
	out.classes.Rows = append(out.classes.Rows, Row{Name: RowOverall, Values: overall})

	headline := confusion.HeadlineMetricNames
	out.macro = Table{Columns: slices.Clone(headline)}
	average := make([]float64, len(headline))
	weighted := make([]float64, len(headline))
	totalPositives := floats.Sum(positives)
	for j, name := range headline {
		average[j] = overall[slices.Index(confusion.ReportMetricNames, name)]
		if totalPositives > 0 {
			weighted[j] = round2(stat.Mean(metricColumn(sets, name), positives))
		}
	}
	out.macro.Rows = append(out.macro.Rows,
		Row{Name: RowAverage, Values: average},
		Row{Name: RowWeightedAvg, Values: weighted},
	)
	if weights != nil {
		user := make([]float64, len(headline))
		for j, name := range headline {
			user[j] = round2(floats.Dot(metricColumn(sets, name), weights) / float64(len(sets)))
		}
		out.macro.Rows = append(out.macro.Rows, Row{Name: RowUserWeightedAvg, Values: user})
	}

	micro, err := confusion.WeightedSum(out.classMatrices, weights)
	if err != nil {
		return aggregateTables{}, err
	}
	out.microMatrix = micro
	mm := confusion.Derive(confusion.FromTwoByTwo(micro))
	out.micro = Table{
		Columns: []string{ColumnOA, confusion.IoU},
		Rows:    []Row{{Name: RowValues, Values: []float64{mm.Precision, mm.IoU}}},
	}

	return out, nil
}

func metricColumn(sets []confusion.MetricSet, name string) []float64 {
	out := make([]float64, len(sets))
	for i, s := range sets {
		out[i], _ = s.Get(name)
	}
	return out
}

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// binaryTables returns the operating-threshold row and the per-threshold
// table of the positive class.
func binaryTables(a *accumulator) (values, perThreshold *Table) {
	op := confusion.Derive(a.oneVsRest[0][a.operating])
	values = &Table{
		Columns: slices.Clone(confusion.ReportMetricNames),
		Rows:    []Row{{Name: RowValues, Values: op.ReportValues()}},
	}

	perThreshold = &Table{Columns: slices.Clone(confusion.MetricNames)}
	for k, t := range a.thresholds {
		m := confusion.Derive(a.oneVsRest[0][k])
		perThreshold.Rows = append(perThreshold.Rows, Row{
			Name:   strconv.FormatFloat(t, 'g', -1, 64),
			Values: m.Values(),
		})
	}
	return values, perThreshold
}

func classCurves(a *accumulator, labels []string) []ClassCurve {
	out := make([]ClassCurve, len(labels))
	for c, label := range labels {
		cc := ClassCurve{Class: label, Thresholds: slices.Clone(a.thresholds)}
		for _, q := range a.oneVsRest[c] {
			m := confusion.Derive(q)
			cc.Recall = append(cc.Recall, m.Recall)
			cc.FPR = append(cc.FPR, m.FPR)
			cc.Precision = append(cc.Precision, m.Precision)
		}
		cc.ROCAUC = curve.AUC(curve.ROC(cc.FPR, cc.Recall))
		cc.PRAUC = curve.AUC(curve.PR(cc.Recall, cc.Precision))
		out[c] = cc
	}
	return out
}

// classCalibrations builds the reliability diagrams. Histogram fractions
// are taken over the first class's binned pixel count, which every class
// shares when predictions stay inside the edges.
func classCalibrations(a *accumulator, labels []string) []ClassCalibration {
	var total float64
	if len(a.calibration) > 0 {
		total = floats.Sum(a.calibration[0].Histogram)
	}
	out := make([]ClassCalibration, len(labels))
	for c, label := range labels {
		acc := a.calibration[c]
		cv := acc.Curve()
		out[c] = ClassCalibration{
			Class:             label,
			Bins:              cv.Bins,
			ProbTrue:          cv.ProbTrue,
			ProbPred:          cv.ProbPred,
			Counts:            cv.Counts,
			Histogram:         slices.Clone(acc.Histogram),
			HistogramFraction: acc.HistogramFractions(total),
			ECE:               cv.ECE(),
		}
	}
	return out
}

// Summary columns of Report.PatchSummary.
var summaryColumns = []string{"mean", "median", "p5", "p95"}

// patchSummary describes the distribution of every per-sample metric.
func patchSummary(columns []string, rows []PatchRow) (*Table, error) {
	t := &Table{Columns: slices.Clone(summaryColumns)}
	if len(rows) == 0 {
		return t, nil
	}
	flat := make([][]float64, len(rows))
	for i, r := range rows {
		flat[i] = r.Values()
	}
	for j, name := range columns {
		data := make(stats.Float64Data, len(rows))
		for i := range flat {
			data[i] = flat[i][j]
		}
		mean, err := data.Mean()
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", name, err)
		}
		median, err := data.Median()
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", name, err)
		}
		p5, err := data.PercentileNearestRank(5)
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", name, err)
		}
		p95, err := data.PercentileNearestRank(95)
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", name, err)
		}
		t.Rows = append(t.Rows, Row{Name: name, Values: []float64{mean, median, p5, p95}})
	}
	return t, nil
}

func metricHistograms(columns []string, rows []PatchRow, edges []float64) []MetricHistogram {
	values := make([][]float64, len(columns))
	for _, r := range rows {
		for j, v := range r.Values() {
			values[j] = append(values[j], v)
		}
	}
	out := make([]MetricHistogram, len(columns))
	for j, name := range columns {
		out[j] = MetricHistogram{Metric: name, Counts: calibration.Histogram(edges, values[j])}
	}
	return out
}
