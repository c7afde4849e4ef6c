package export

import (
	"encoding/json"
	"io"

	"gonum.org/v1/gonum/mat"

	segmetrics "github.com/jamesainslie/go-segmetrics"
	"github.com/jamesainslie/go-segmetrics/confusion"
)

// jsonReport adds the confusion matrices, as nested rows, to the report's
// own JSON fields.
type jsonReport struct {
	*segmetrics.Report
	JointMatrix             [][]float64   `json:"joint_matrix,omitempty"`
	NormalizedJointMatrix   [][]float64   `json:"normalized_joint_matrix,omitempty"`
	ClassMatrices           [][][]float64 `json:"class_matrices,omitempty"`
	NormalizedClassMatrices [][][]float64 `json:"normalized_class_matrices,omitempty"`
	MicroMatrix             [][]float64   `json:"micro_matrix,omitempty"`
}

// WriteJSON writes the whole report as indented JSON.
func WriteJSON(w io.Writer, r *segmetrics.Report) error {
	out := jsonReport{
		Report:                  r,
		JointMatrix:             confusion.Rows(denseOrNil(r.JointMatrix)),
		NormalizedJointMatrix:   confusion.Rows(denseOrNil(r.NormalizedJointMatrix)),
		ClassMatrices:           matrixRows(r.ClassMatrices),
		NormalizedClassMatrices: matrixRows(r.NormalizedClassMatrices),
		MicroMatrix:             confusion.Rows(denseOrNil(r.MicroMatrix)),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func matrixRows(ms []*mat.Dense) [][][]float64 {
	if ms == nil {
		return nil
	}
	out := make([][][]float64, len(ms))
	for i, m := range ms {
		out[i] = confusion.Rows(denseOrNil(m))
	}
	return out
}

// denseOrNil keeps a nil *mat.Dense from becoming a non-nil mat.Matrix.
func denseOrNil(m *mat.Dense) mat.Matrix {
	if m == nil {
		return nil
	}
	return m
}
