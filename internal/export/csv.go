package export

import (
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

// patchIDColumn heads the sample-name column of the per-patch CSV.
const patchIDColumn = "name_file"

// curvePoint is one row of the curves CSV.
type curvePoint struct {
	Class     string  `csv:"class"`
	Threshold float64 `csv:"threshold"`
	Recall    float64 `csv:"recall"`
	FPR       float64 `csv:"fpr"`
	Precision float64 `csv:"precision"`
}

// calibrationBin is one row of the calibration CSV.
type calibrationBin struct {
	Class    string  `csv:"class"`
	Bin      int     `csv:"bin"`
	Lower    float64 `csv:"lower"`
	Upper    float64 `csv:"upper"`
	ProbTrue float64 `csv:"prob_true"`
	ProbPred float64 `csv:"prob_pred"`
	Count    float64 `csv:"count"`
}

// WritePatchesCSV writes one row per sample: its name, then every column
// of r.PatchColumns.
func WritePatchesCSV(w io.Writer, r *segmetrics.Report) error {
	cw := gocsv.DefaultCSVWriter(w)
	if err := cw.Write(append([]string{patchIDColumn}, r.PatchColumns...)); err != nil {
		return err
	}
	record := make([]string, 0, len(r.PatchColumns)+1)
	for _, p := range r.Patches {
		record = append(record[:0], p.ID)
		for _, v := range p.Values() {
			record = append(record, formatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCurvesCSV writes the ROC and precision-recall points of every class
// in long format.
func WriteCurvesCSV(w io.Writer, r *segmetrics.Report) error {
	return gocsv.Marshal(curvePoints(r), w)
}

// WriteCalibrationCSV writes the non-empty calibration bins of every class
// with their edges.
func WriteCalibrationCSV(w io.Writer, r *segmetrics.Report) error {
	return gocsv.Marshal(calibrationBins(r), w)
}

func curvePoints(r *segmetrics.Report) []curvePoint {
	var out []curvePoint
	for _, c := range r.Curves {
		for i, t := range c.Thresholds {
			out = append(out, curvePoint{
				Class:     c.Class,
				Threshold: t,
				Recall:    c.Recall[i],
				FPR:       c.FPR[i],
				Precision: c.Precision[i],
			})
		}
	}
	return out
}

func calibrationBins(r *segmetrics.Report) []calibrationBin {
	var out []calibrationBin
	for _, c := range r.Calibration {
		for i, b := range c.Bins {
			row := calibrationBin{
				Class:    c.Class,
				Bin:      b,
				ProbTrue: c.ProbTrue[i],
				ProbPred: c.ProbPred[i],
				Count:    c.Counts[i],
			}
			// The last slot collects values on the final edge.
			if b < len(r.Edges) {
				row.Lower = r.Edges[b]
				row.Upper = r.Edges[b]
			}
			if b+1 < len(r.Edges) {
				row.Upper = r.Edges[b+1]
			}
			out = append(out, row)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
