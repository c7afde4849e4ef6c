// Package export writes a segmetrics.Report to disk in the formats the CLI
// produces: JSON, CSV, an XLSX workbook and long-format Parquet.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

// File names written by WriteAll.
const (
	ReportJSON     = "report.json"
	PatchesCSV     = "metrics_per_patch.csv"
	CurvesCSV      = "curves.csv"
	CalibrationCSV = "calibration.csv"
	Workbook       = "report.xlsx"
	PatchesParquet = "metrics_per_patch.parquet"
)

// ErrUnknownFormat is returned by WriteFile for an unsupported format.
var ErrUnknownFormat = errors.New("export: unknown format")

// WriteAll writes every output that r has data for into dir, creating it if
// needed, and returns the paths written.
func WriteAll(dir string, r *segmetrics.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	type output struct {
		name  string
		skip  bool
		write func(io.Writer, *segmetrics.Report) error
	}
	outputs := []output{
		{name: ReportJSON, write: WriteJSON},
		{name: PatchesCSV, skip: r.Patches == nil, write: WritePatchesCSV},
		{name: CurvesCSV, skip: r.Curves == nil, write: WriteCurvesCSV},
		{name: CalibrationCSV, skip: r.Calibration == nil, write: WriteCalibrationCSV},
		{name: Workbook, write: WriteWorkbook},
		{name: PatchesParquet, skip: r.Patches == nil, write: WritePatchesParquet},
	}

	var written []string
	for _, o := range outputs {
		if o.skip {
			continue
		}
		path := filepath.Join(dir, o.name)
		if err := writeFile(path, r, o.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteFile writes one output in the given format: json, csv (per-patch
// rows), xlsx or parquet.
func WriteFile(path, format string, r *segmetrics.Report) error {
	switch format {
	case "json":
		return writeFile(path, r, WriteJSON)
	case "csv":
		return writeFile(path, r, WritePatchesCSV)
	case "xlsx":
		return writeFile(path, r, WriteWorkbook)
	case "parquet":
		return writeFile(path, r, WritePatchesParquet)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeFile(path string, r *segmetrics.Report, write func(io.Writer, *segmetrics.Report) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f, r); err != nil {
		return errors.Join(fmt.Errorf("writing %s: %w", path, err), f.Close())
	}
	return f.Close()
}
