package segmetrics

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-segmetrics/calibration"
	"github.com/jamesainslie/go-segmetrics/confusion"
)

type scanState int

const (
	stateInit scanState = iota
	stateScanning
	stateFinalizing
	stateDone
)

func (s scanState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateScanning:
		return "scanning"
	case stateFinalizing:
		return "finalizing"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("scanState(%d)", int(s))
}

// accumulator holds the running sums of one scan. Every slot is allocated
// up front, so samples only ever add into existing storage.
type accumulator struct {
	state scanState

	mode            confusion.Mode
	shape           Shape
	labels          []string
	thresholds      []float64
	operating       int
	edges           []float64
	weights         []float64
	scale           float64
	patchMetrics    bool
	withCalibration bool

	// first is the dataset index of the first sample of this scan and size
	// the length of the dataset it belongs to.
	first   int
	size    int
	samples int

	// oneVsRest[c][k] sums the observations of class c at thresholds[k].
	oneVsRest [][]confusion.Quadruple
	// joint is the C×C matrix of argmax labels, multiclass only.
	joint       *mat.Dense
	positives   []float64
	calibration []*calibration.Accumulator
	patches     []PatchRow
}

func (e *Evaluator) newAccumulator(l layout, first int) *accumulator {
	a := &accumulator{
		mode:            e.mode,
		shape:           l.shape,
		labels:          slices.Clone(l.labels),
		thresholds:      e.thresholds,
		operating:       e.operating,
		edges:           e.edges,
		weights:         e.cfg.weights,
		scale:           e.scale,
		patchMetrics:    e.cfg.patchMetrics,
		withCalibration: e.cfg.calibration,
		first:           first,
		size:            l.size,
	}
	a.allocate()
	return a
}

func (a *accumulator) allocate() {
	classes := a.classes()
	a.oneVsRest = make([][]confusion.Quadruple, classes)
	for c := range a.oneVsRest {
		a.oneVsRest[c] = make([]confusion.Quadruple, len(a.thresholds))
	}
	if a.mode == confusion.Multiclass {
		a.joint = mat.NewDense(classes, classes, nil)
	}
	a.positives = make([]float64, classes)
	if a.withCalibration {
		a.calibration = make([]*calibration.Accumulator, classes)
		for c := range a.calibration {
			// Edges were validated when the Evaluator was built.
			a.calibration[c], _ = calibration.NewAccumulator(a.edges)
		}
	}
}

// classes is the number of scanned channels: one for binary, C otherwise.
func (a *accumulator) classes() int {
	return a.shape.Channels
}

// classLabels names the scanned channels. Binary scans only the positive
// class.
func (a *accumulator) classLabels() []string {
	if a.mode == confusion.Binary {
		return a.labels[1:]
	}
	return a.labels
}

func (a *accumulator) threshold() float64 {
	return a.thresholds[a.operating]
}

func (a *accumulator) checkShape(s Sample) error {
	for _, r := range []struct {
		name   string
		raster Raster
	}{
		{"mask", s.Mask},
		{"prediction", s.Prediction},
	} {
		if r.raster.Shape() != a.shape {
			return &ShapeError{ID: s.ID, Raster: r.name, Expected: a.shape, Actual: r.raster.Shape()}
		}
		if !r.raster.wellFormed() {
			return fmt.Errorf("%w: sample %q: %s holds %d values for shape %s",
				ErrShapeMismatch, s.ID, r.name, len(r.raster.Data), a.shape)
		}
	}
	return nil
}

// probabilities returns the prediction scaled into [0, 1].
func (a *accumulator) probabilities(r Raster) Raster {
	if a.scale == 1 {
		return r
	}
	out := Raster{Height: r.Height, Width: r.Width, Channels: r.Channels, Data: make([]float32, len(r.Data))}
	for i, v := range r.Data {
		out.Data[i] = float32(float64(v) / a.scale)
	}
	return out
}

// add folds one sample into the running sums.
func (a *accumulator) add(s Sample) error {
	switch a.state {
	case stateInit:
		a.state = stateScanning
	case stateScanning:
	default:
		return fmt.Errorf("%w: adding sample %q in state %v", ErrFinalized, s.ID, a.state)
	}
	if err := a.checkShape(s); err != nil {
		return err
	}

	classes := a.classes()
	pred := a.probabilities(s.Prediction)
	probs := make([][]float32, classes)
	truths := make([][]int, classes)
	atOperating := make([]confusion.Quadruple, classes)

	// Per-threshold one-vs-rest observations, every class.
	for c := 0; c < classes; c++ {
		probs[c] = pred.Channel(c, nil)
		truths[c] = confusion.Positives(s.Mask.Channel(c, nil))
		a.positives[c] += float64(countPositive(truths[c]))

		for k, t := range a.thresholds {
			cm, err := confusion.Build(truths[c], confusion.Threshold(probs[c], t), 2, true)
			if err != nil {
				return fmt.Errorf("sample %q class %d: %w", s.ID, c, err)
			}
			q := confusion.FromTwoByTwo(cm)
			a.oneVsRest[c][k] = a.oneVsRest[c][k].Add(q)
			if k == a.operating {
				atOperating[c] = q
			}
		}
	}

	// Once per sample: joint matrix, calibration and the per-sample row.
	var sampleCM *mat.Dense
	if a.mode == confusion.Multiclass {
		maskLabels, predLabels, err := confusion.Binarize(a.mode, pred.Data, s.Mask.Data, classes, a.threshold())
		if err != nil {
			return fmt.Errorf("sample %q: %w", s.ID, err)
		}
		if sampleCM, err = confusion.Build(maskLabels, predLabels, classes, false); err != nil {
			return fmt.Errorf("sample %q: %w", s.ID, err)
		}
		a.joint.Add(a.joint, sampleCM)
	}

	for c, acc := range a.calibration {
		if err := acc.Add(probs[c], truths[c]); err != nil {
			return fmt.Errorf("sample %q class %d: %w", s.ID, c, err)
		}
	}

	if a.patchMetrics {
		quads := atOperating
		if sampleCM != nil {
			quads = confusion.Quadruples(sampleCM)
		}
		row, err := newPatchRow(s.ID, quads, a.weights)
		if err != nil {
			return fmt.Errorf("sample %q: %w", s.ID, err)
		}
		a.patches = append(a.patches, row)
	}

	a.samples++
	return nil
}

// quadruples returns the per-class observations the report tables use:
// the joint matrix for multiclass, the operating threshold otherwise.
func (a *accumulator) quadruples() []confusion.Quadruple {
	if a.joint != nil {
		return confusion.Quadruples(a.joint)
	}
	out := make([]confusion.Quadruple, a.classes())
	for c := range out {
		out[c] = a.oneVsRest[c][a.operating]
	}
	return out
}

// compatible reports whether o was scanned with the same layout and
// configuration as a.
func (a *accumulator) compatible(o *accumulator) error {
	switch {
	case a.mode != o.mode:
		return fmt.Errorf("%w: mode %v and %v", ErrIncompatiblePartial, a.mode, o.mode)
	case a.size != o.size:
		return fmt.Errorf("%w: dataset lengths %d and %d", ErrIncompatiblePartial, a.size, o.size)
	case a.shape != o.shape:
		return fmt.Errorf("%w: shape %v and %v", ErrIncompatiblePartial, a.shape, o.shape)
	case !slices.Equal(a.labels, o.labels):
		return fmt.Errorf("%w: labels %v and %v", ErrIncompatiblePartial, a.labels, o.labels)
	case !slices.Equal(a.thresholds, o.thresholds) || a.operating != o.operating:
		return fmt.Errorf("%w: threshold sets differ", ErrIncompatiblePartial)
	case !slices.Equal(a.edges, o.edges):
		return fmt.Errorf("%w: calibration edges differ", ErrIncompatiblePartial)
	case !slices.Equal(a.weights, o.weights):
		return fmt.Errorf("%w: class weights differ", ErrIncompatiblePartial)
	case a.scale != o.scale:
		return fmt.Errorf("%w: prediction scales differ", ErrIncompatiblePartial)
	case a.patchMetrics != o.patchMetrics || a.withCalibration != o.withCalibration:
		return fmt.Errorf("%w: per-sample or calibration settings differ", ErrIncompatiblePartial)
	}
	return nil
}

// merge adds the sums of o, whose samples follow those already in a.
func (a *accumulator) merge(o *accumulator) error {
	if a.state >= stateFinalizing {
		return fmt.Errorf("%w: merging in state %v", ErrFinalized, a.state)
	}
	if err := a.compatible(o); err != nil {
		return err
	}

	for c := range a.oneVsRest {
		for k := range a.oneVsRest[c] {
			a.oneVsRest[c][k] = a.oneVsRest[c][k].Add(o.oneVsRest[c][k])
		}
	}
	if a.joint != nil {
		a.joint.Add(a.joint, o.joint)
	}
	floats.Add(a.positives, o.positives)
	for c, acc := range a.calibration {
		if err := acc.Merge(o.calibration[c]); err != nil {
			return err
		}
	}
	a.patches = append(a.patches, o.patches...)
	a.samples += o.samples
	if a.samples > 0 {
		a.state = stateScanning
	}
	return nil
}

func countPositive(labels []int) int {
	n := 0
	for _, l := range labels {
		n += l
	}
	return n
}
