package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

// Sheet names of the workbook.
const (
	SheetClasses     = "Classes"
	SheetMacro       = "Macro"
	SheetMicro       = "Micro"
	SheetThresholds  = "Thresholds"
	SheetPatches     = "Patches"
	SheetSummary     = "Patch summary"
	SheetCurves      = "Curves"
	SheetCalibration = "Calibration"
)

const defaultSheet = "Sheet1"

// WriteWorkbook writes the report tables as an XLSX workbook, one sheet per
// table. Sheets for disabled parts are left out.
func WriteWorkbook(w io.Writer, r *segmetrics.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	wb := workbook{f: f, header: header}

	if err := wb.table(SheetClasses, "Class", r.Classes); err != nil {
		return err
	}
	if err := wb.table(SheetMacro, "", r.Macro); err != nil {
		return err
	}
	if err := wb.table(SheetMicro, "", r.Micro); err != nil {
		return err
	}
	if r.ThresholdMetrics != nil {
		if err := wb.table(SheetThresholds, "Threshold", *r.ThresholdMetrics); err != nil {
			return err
		}
	}
	if r.Patches != nil {
		rows := make([][]any, len(r.Patches))
		for i, p := range r.Patches {
			rows[i] = append([]any{p.ID}, floatsToAny(p.Values())...)
		}
		if err := wb.sheet(SheetPatches, append([]string{patchIDColumn}, r.PatchColumns...), rows); err != nil {
			return err
		}
	}
	if r.PatchSummary != nil {
		if err := wb.table(SheetSummary, "Metric", *r.PatchSummary); err != nil {
			return err
		}
	}
	if r.Curves != nil {
		points := curvePoints(r)
		rows := make([][]any, len(points))
		for i, p := range points {
			rows[i] = []any{p.Class, p.Threshold, p.Recall, p.FPR, p.Precision}
		}
		if err := wb.sheet(SheetCurves, []string{"class", "threshold", "recall", "fpr", "precision"}, rows); err != nil {
			return err
		}
	}
	if r.Calibration != nil {
		bins := calibrationBins(r)
		rows := make([][]any, len(bins))
		for i, b := range bins {
			rows[i] = []any{b.Class, b.Bin, b.Lower, b.Upper, b.ProbTrue, b.ProbPred, b.Count}
		}
		cols := []string{"class", "bin", "lower", "upper", "prob_true", "prob_pred", "count"}
		if err := wb.sheet(SheetCalibration, cols, rows); err != nil {
			return err
		}
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

type workbook struct {
	f      *excelize.File
	header int
}

// table writes t with its row names in the first column.
func (wb workbook) table(name, corner string, t segmetrics.Table) error {
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = append([]any{r.Name}, floatsToAny(r.Values)...)
	}
	return wb.sheet(name, append([]string{corner}, t.Columns...), rows)
}

func (wb workbook) sheet(name string, columns []string, rows [][]any) error {
	if _, err := wb.f.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := wb.f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	last, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if err := wb.f.SetCellStyle(name, "A1", last+"1", wb.header); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if err := wb.f.SetColWidth(name, "A", last, 14); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
		if err := wb.f.SetSheetRow(name, cell, &rows[i]); err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	return nil
}

func floatsToAny(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
