package segmetrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-segmetrics/confusion"
)

// approx compares report parts whose float sums may be reordered.
var approx = cmpopts.EquateApprox(0, 1e-9)

func TestRun_PerfectTwoClass(t *testing.T) {
	idx := indexRaster(2, 2, 1, 0, 0, 1)
	mask := oneHot(t, idx, 2)
	ds := SliceDataset{{ID: "tile_a", Mask: mask, Prediction: mask}}

	ev, err := New(confusion.Multiclass, []string{"background", "building"}, WithLogger(quietLogger()))
	require.NoError(t, err)

	r, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Samples)
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, []float64{2, 0, 0, 2}, r.JointMatrix.RawMatrix().Data)
	assert.Equal(t, []float64{1, 0, 0, 1}, r.NormalizedJointMatrix.RawMatrix().Data)

	for _, label := range []string{"background", "building", RowOverall} {
		for _, m := range confusion.ReportMetricNames {
			v, ok := r.Classes.Value(label, m)
			require.True(t, ok, "%s/%s", label, m)
			assert.Equal(t, 1.0, v, "%s/%s", label, m)
		}
	}

	oa, ok := r.Micro.Value(RowValues, ColumnOA)
	require.True(t, ok)
	assert.Equal(t, 1.0, oa)

	weighted, ok := r.Macro.Row(RowWeightedAvg)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1, 1, 1}, weighted.Values)
	_, ok = r.Macro.Row(RowUserWeightedAvg)
	assert.False(t, ok, "no user weights were given")

	require.Len(t, r.Curves, 2)
	for _, c := range r.Curves {
		assert.InDelta(t, 1, c.ROCAUC, 1e-12, c.Class)
		assert.InDelta(t, 1, c.PRAUC, 1e-12, c.Class)
	}

	require.Len(t, r.Calibration, 2)
	cal := r.Calibration[0]
	assert.Equal(t, []int{0, 10}, cal.Bins)
	assert.Equal(t, []float64{0, 1}, cal.ProbTrue)
	assert.Equal(t, []float64{0, 1}, cal.ProbPred)
	assert.Zero(t, cal.ECE)
	assert.Equal(t, []float64{0.5, 0, 0, 0, 0, 0, 0, 0, 0, 0.5}, cal.HistogramFraction)

	require.Len(t, r.Patches, 1)
	row := r.Patches[0]
	assert.Equal(t, "tile_a", row.ID)
	assert.Equal(t, 1.0, row.OA)
	assert.Equal(t, 1.0, row.MicroIoU)
	assert.Len(t, row.Values(), len(r.PatchColumns))
	assert.Equal(t, "building_F1-Score", r.PatchColumns[len(r.PatchColumns)-3])
}

func TestRun_MulticlassTotals(t *testing.T) {
	const (
		n, h, w, classes = 7, 4, 5, 3
	)
	ds := randomDataset(1, n, h, w, classes)
	ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	r, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)

	pixels := float64(n * h * w)
	assert.Equal(t, pixels, mat.Sum(r.JointMatrix))
	for i, m := range r.ClassMatrices {
		assert.Equal(t, pixels, mat.Sum(m), "class %d", i)
	}
	assert.Equal(t, []string{"class 1", "class 2", "class 3"}, r.Labels)
	assert.Len(t, r.Classes.Rows, classes+1)
	assert.Len(t, r.Patches, n)
	assert.Len(t, r.PatchSummary.Rows, len(r.PatchColumns))

	// Overall is the plain mean of the class rows.
	for j, name := range r.Classes.Columns {
		var sum float64
		for _, row := range r.Classes.Rows[:classes] {
			sum += row.Values[j]
		}
		got, _ := r.Classes.Value(RowOverall, name)
		assert.InDelta(t, sum/classes, got, 1e-12, name)
	}

	for _, hist := range r.MetricHistograms {
		var total float64
		for _, c := range hist.Counts {
			total += c
		}
		assert.Equal(t, float64(n), total, hist.Metric)
	}
}

func TestRun_SmallDatasets(t *testing.T) {
	for _, n := range []int{1, 2, 5, 19, 20} {
		t.Run(fmt.Sprintf("%d samples", n), func(t *testing.T) {
			ds := randomDataset(int64(30+n), n, 3, 3, 3)
			ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
			require.NoError(t, err)

			r, err := ev.Run(context.Background(), ds)
			require.NoError(t, err)
			require.Len(t, r.PatchSummary.Rows, len(r.PatchColumns))

			sharded, err := ev.RunSharded(context.Background(), ds, 2)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(r.PatchSummary, sharded.PatchSummary, approx))

			// Percentiles are nearest-rank: always one of the observed values.
			for j, name := range r.PatchColumns {
				values := make([]float64, n)
				for i, row := range r.Patches {
					values[i] = row.Values()[j]
				}
				slices.Sort(values)

				p5, ok := r.PatchSummary.Value(name, "p5")
				require.True(t, ok, name)
				p95, ok := r.PatchSummary.Value(name, "p95")
				require.True(t, ok, name)
				assert.Equal(t, values[int(math.Ceil(0.05*float64(n)))-1], p5, name)
				assert.Equal(t, values[int(math.Ceil(0.95*float64(n)))-1], p95, name)
			}
		})
	}
}

func TestRun_RecallFallsWithThreshold(t *testing.T) {
	for _, mode := range []confusion.Mode{confusion.Multiclass, confusion.Multilabel} {
		t.Run(mode.String(), func(t *testing.T) {
			ds := randomDataset(2, 5, 6, 6, 3)
			if mode == confusion.Multilabel {
				ds = randomMultilabel(2, 5, 6, 6, 3)
			}
			ev, err := New(mode, nil, WithThresholdCount(25), WithLogger(quietLogger()))
			require.NoError(t, err)

			r, err := ev.Run(context.Background(), ds)
			require.NoError(t, err)

			for _, c := range r.Curves {
				for k := 1; k < len(c.Recall); k++ {
					assert.LessOrEqual(t, c.Recall[k], c.Recall[k-1], "%s at %g", c.Class, c.Thresholds[k])
					assert.LessOrEqual(t, c.FPR[k], c.FPR[k-1], "%s at %g", c.Class, c.Thresholds[k])
				}
			}
		})
	}
}

func TestRun_Multilabel(t *testing.T) {
	mask := NewRaster(2, 2, 2)
	copy(mask.Data, []float32{
		1, 1,
		1, 0,
		0, 1,
		0, 0,
	})
	pred := NewRaster(2, 2, 2)
	copy(pred.Data, []float32{
		0.9, 0.2,
		0.6, 0.3,
		0.4, 0.8,
		0.1, 0.1,
	})

	ev, err := New(confusion.Multilabel, []string{"tree", "water"}, WithLogger(quietLogger()))
	require.NoError(t, err)
	r, err := ev.Run(context.Background(), SliceDataset{{ID: "ml", Mask: mask, Prediction: pred}})
	require.NoError(t, err)

	assert.Nil(t, r.JointMatrix, "multilabel has no joint matrix")

	tree, _ := r.Classes.Row("tree")
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1}, tree.Values)

	water := confusion.Derive(confusion.Quadruple{TP: 1, FN: 1, FP: 0, TN: 2})
	got, _ := r.Classes.Row("water")
	assert.InDeltaSlice(t, water.ReportValues(), got.Values, 1e-12)
	assert.InDelta(t, 2.0/3, water.F1, 1e-12)
}

func TestRun_Binary(t *testing.T) {
	mask := indexRaster(2, 2, 0, 1, 0, 1)
	pred := indexRaster(2, 2, 0.05, 0.15, 0.15, 0.95)

	ev, err := New(confusion.Binary, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	r, err := ev.Run(context.Background(), SliceDataset{{ID: "b", Mask: mask, Prediction: pred}})
	require.NoError(t, err)

	assert.Equal(t, []string{"class 2"}, r.ClassLabels())
	require.NotNil(t, r.Values)
	require.NotNil(t, r.ThresholdMetrics)
	assert.Len(t, r.ThresholdMetrics.Rows, len(r.Thresholds))
	assert.Equal(t, confusion.MetricNames, r.ThresholdMetrics.Columns)

	// At 0.5 only 0.95 is positive: tp 1, fn 1, fp 0, tn 2.
	want := confusion.Derive(confusion.Quadruple{TP: 1, FN: 1, TN: 2})
	assert.InDeltaSlice(t, want.ReportValues(), r.Values.Rows[0].Values, 1e-12)

	require.Len(t, r.Calibration, 1)
	cal := r.Calibration[0]
	assert.Equal(t, []int{0, 1, 9}, cal.Bins)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, cal.ProbTrue, 1e-9)
	assert.Equal(t, []float64{1, 2, 1}, cal.Counts)
}

func TestRun_DegenerateInputsStayFinite(t *testing.T) {
	ds := SliceDataset{{ID: "empty", Mask: NewRaster(3, 3, 1), Prediction: NewRaster(3, 3, 1)}}
	ev, err := New(confusion.Binary, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	r, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)

	tables := []Table{r.Classes, r.Macro, r.Micro, *r.Values, *r.ThresholdMetrics}
	for _, tb := range tables {
		for _, row := range tb.Rows {
			for _, v := range row.Values {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s: %v", row.Name, row.Values)
			}
		}
	}
	acc, _ := r.Values.Value(RowValues, confusion.Accuracy)
	assert.Equal(t, 1.0, acc)
	prec, _ := r.Values.Value(RowValues, confusion.Precision)
	assert.Zero(t, prec)
}

func TestRun_ShardedMatchesSequential(t *testing.T) {
	ds := randomDataset(3, 11, 5, 4, 4)
	ev, err := New(confusion.Multiclass, nil, WithWeights(1, 2, 0.5, 1), WithLogger(quietLogger()))
	require.NoError(t, err)

	seq, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)

	for _, shards := range []int{1, 2, 3, 11, 50} {
		sharded, err := ev.RunSharded(context.Background(), ds, shards)
		require.NoError(t, err, "shards=%d", shards)

		assert.True(t, mat.Equal(seq.JointMatrix, sharded.JointMatrix), "shards=%d", shards)
		assert.Empty(t, cmp.Diff(seq.Classes, sharded.Classes, approx), "shards=%d", shards)
		assert.Empty(t, cmp.Diff(seq.Macro, sharded.Macro, approx), "shards=%d", shards)
		assert.Empty(t, cmp.Diff(seq.Micro, sharded.Micro, approx), "shards=%d", shards)
		assert.Empty(t, cmp.Diff(seq.Curves, sharded.Curves, approx), "shards=%d", shards)
		assert.Empty(t, cmp.Diff(seq.Calibration, sharded.Calibration, approx), "shards=%d", shards)
		assert.Empty(t, cmp.Diff(seq.Patches, sharded.Patches, approx), "patch order follows the dataset, shards=%d", shards)
	}
}

func TestRun_OrderIndependent(t *testing.T) {
	ds := randomDataset(4, 6, 3, 3, 3)
	reversed := make(SliceDataset, len(ds))
	for i, s := range ds {
		reversed[len(ds)-1-i] = s
	}

	ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	a, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)
	b, err := ev.Run(context.Background(), reversed)
	require.NoError(t, err)

	assert.True(t, mat.Equal(a.JointMatrix, b.JointMatrix))
	assert.Empty(t, cmp.Diff(a.Classes, b.Classes, approx))
	assert.Empty(t, cmp.Diff(a.Calibration, b.Calibration, approx))
	assert.Equal(t, a.Patches[0].ID, b.Patches[len(b.Patches)-1].ID)
}

func TestRun_RawPredictionsMatchProbabilities(t *testing.T) {
	ds := randomMultilabel(5, 4, 4, 4, 2)
	raw := make(SliceDataset, len(ds))
	for i, s := range ds {
		p := NewRaster(s.Prediction.Height, s.Prediction.Width, s.Prediction.Channels)
		for k, v := range s.Prediction.Data {
			// Whole 8-bit levels keep the comparison exact.
			level := float32(math.Round(float64(v) * 255))
			p.Data[k] = level
			s.Prediction.Data[k] = float32(float64(level) / 255)
		}
		raw[i] = Sample{ID: s.ID, Mask: s.Mask, Prediction: p}
	}

	prob, err := New(confusion.Multilabel, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	scaled, err := New(confusion.Multilabel, nil, WithInProbRange(false), WithBitDepth("8 bits"), WithLogger(quietLogger()))
	require.NoError(t, err)

	a, err := prob.Run(context.Background(), ds)
	require.NoError(t, err)
	b, err := scaled.Run(context.Background(), raw)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(a.Classes, b.Classes, approx))
	assert.Empty(t, cmp.Diff(a.Curves, b.Curves, approx))
}

func TestRun_UserWeightedAverage(t *testing.T) {
	ds := randomDataset(6, 3, 4, 4, 2)
	ev, err := New(confusion.Multiclass, nil, WithWeights(2, 0), WithLogger(quietLogger()))
	require.NoError(t, err)

	r, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)

	user, ok := r.Macro.Row(RowUserWeightedAvg)
	require.True(t, ok)
	for j, name := range r.Macro.Columns {
		// (2*m1 + 0*m2) / 2 classes
		v, ok := r.Classes.Value("class 1", name)
		require.True(t, ok, name)
		assert.InDelta(t, round2(v), user.Values[j], 1e-12, name)
	}
}

func TestRun_Errors(t *testing.T) {
	good := randomDataset(7, 3, 2, 2, 2)

	t.Run("empty dataset", func(t *testing.T) {
		ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), SliceDataset{})
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})

	t.Run("batch larger than dataset", func(t *testing.T) {
		ev, err := New(confusion.Multiclass, nil, WithBatchSize(4), WithLogger(quietLogger()))
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), good)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("shape mismatch names the sample", func(t *testing.T) {
		bad := append(SliceDataset{}, good...)
		bad[2] = Sample{ID: "odd", Mask: NewRaster(3, 2, 2), Prediction: NewRaster(3, 2, 2)}

		ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
		require.NoError(t, err)
		r, err := ev.Run(context.Background(), bad)
		assert.Nil(t, r)
		require.ErrorIs(t, err, ErrShapeMismatch)

		var se *ShapeError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "odd", se.ID)
		assert.Equal(t, Shape{2, 2, 2}, se.Expected)
		assert.Equal(t, Shape{3, 2, 2}, se.Actual)
	})

	t.Run("prediction disagrees with mask", func(t *testing.T) {
		bad := append(SliceDataset{}, good...)
		bad[1].Prediction = NewRaster(2, 2, 3)

		ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), bad)
		var se *ShapeError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "prediction", se.Raster)
	})

	t.Run("labels disagree with channels", func(t *testing.T) {
		ev, err := New(confusion.Multiclass, []string{"a", "b", "c"}, WithLogger(quietLogger()))
		require.NoError(t, err)
		_, err = ev.Run(context.Background(), good)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
		require.NoError(t, err)
		r, err := ev.Run(ctx, good)
		assert.Nil(t, r)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mode   confusion.Mode
		labels []string
		opts   []Option
	}{
		{"unknown mode", confusion.Mode(5), nil, nil},
		{"threshold above one", confusion.Multiclass, nil, []Option{WithThreshold(1.5)}},
		{"negative threshold in set", confusion.Multiclass, nil, []Option{WithThresholds(-0.1, 0.5)}},
		{"empty threshold set", confusion.Multiclass, nil, []Option{WithThresholds()}},
		{"zero threshold count", confusion.Multiclass, nil, []Option{WithThresholdCount(0)}},
		{"zero bins", confusion.Multiclass, nil, []Option{WithBinCount(0)}},
		{"unsorted bins", confusion.Multiclass, nil, []Option{WithBins(0, 0.6, 0.4, 1)}},
		{"zero batch", confusion.Multiclass, nil, []Option{WithBatchSize(0)}},
		{"weights length", confusion.Multiclass, []string{"a", "b"}, []Option{WithWeights(1)}},
		{"negative weight", confusion.Multiclass, nil, []Option{WithWeights(1, -1)}},
		{"binary weights", confusion.Binary, nil, []Option{WithWeights(1, 1)}},
		{"binary label count", confusion.Binary, []string{"only"}, nil},
		{"single multiclass label", confusion.Multiclass, []string{"only"}, nil},
		{"duplicate labels", confusion.Multilabel, []string{"a", "a"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithLogger(quietLogger())}, tt.opts...)
			_, err := New(tt.mode, tt.labels, opts...)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	ts := ev.Thresholds()
	assert.Len(t, ts, 11, "ten evenly spaced values plus the operating threshold")
	assert.Equal(t, 0.0, ts[0])
	assert.Equal(t, 1.0, ts[len(ts)-1])
	assert.Contains(t, ts, 0.5)
	assert.Len(t, ev.Edges(), 11)
	assert.Equal(t, confusion.Multiclass, ev.Mode())
}

func TestNew_UnknownBitDepthFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ev, err := New(confusion.Multilabel, nil, WithBitDepth("10 bits"), WithInProbRange(false), WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unknown bit depth")
	assert.Equal(t, 255.0, ev.scale)
}

func TestNew_RawBins(t *testing.T) {
	ev, err := New(confusion.Multilabel, nil,
		WithInProbRange(false), WithBitDepth("16 bits"), WithBins(0, 32767.5, 65535),
		WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, ev.Edges())

	ev, err = New(confusion.Multilabel, nil, WithInProbRange(false), WithBinCount(4), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 0.75, 1}, ev.Edges(), 1e-5)
}
