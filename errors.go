package segmetrics

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrInvalidConfig indicates an option value outside its valid range.
	ErrInvalidConfig = errors.New("segmetrics: invalid configuration")

	// ErrBatchTooLarge indicates a batch size larger than the dataset.
	ErrBatchTooLarge = errors.New("segmetrics: batch size exceeds dataset length")

	// ErrShapeMismatch indicates a sample whose rasters disagree in shape.
	ErrShapeMismatch = errors.New("segmetrics: shape mismatch")

	// ErrEmptyDataset indicates a dataset without samples.
	ErrEmptyDataset = errors.New("segmetrics: empty dataset")

	// ErrIncompatiblePartial indicates partial results that were scanned
	// with a different configuration or data layout.
	ErrIncompatiblePartial = errors.New("segmetrics: incompatible partial result")

	// ErrFinalized indicates an accumulator that no longer accepts samples.
	ErrFinalized = errors.New("segmetrics: accumulator already finalized")
)

// ShapeError reports the sample whose mask or prediction does not match the
// shape established by the first sample.
type ShapeError struct {
	ID       string
	Raster   string // "mask" or "prediction"
	Expected Shape
	Actual   Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("segmetrics: shape mismatch in sample %q: %s is %s, want %s", e.ID, e.Raster, e.Actual, e.Expected)
}

// Is makes errors.Is(err, ErrShapeMismatch) match.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}
