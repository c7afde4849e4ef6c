package export

import (
	"errors"
	"io"

	"github.com/parquet-go/parquet-go"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

// PatchMetric is one (sample, metric) cell of the per-patch table.
type PatchMetric struct {
	Sample string  `parquet:"sample,dict"`
	Metric string  `parquet:"metric,dict"`
	Value  float64 `parquet:"value"`
}

// WritePatchesParquet writes the per-patch table in long format, one row
// per sample and metric.
func WritePatchesParquet(w io.Writer, r *segmetrics.Report) error {
	rows := make([]PatchMetric, 0, len(r.Patches)*len(r.PatchColumns))
	for _, p := range r.Patches {
		for j, v := range p.Values() {
			rows = append(rows, PatchMetric{Sample: p.ID, Metric: r.PatchColumns[j], Value: v})
		}
	}

	pw := parquet.NewGenericWriter[PatchMetric](w)
	if _, err := pw.Write(rows); err != nil {
		return errors.Join(err, pw.Close())
	}
	return pw.Close()
}
