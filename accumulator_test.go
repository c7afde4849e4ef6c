package segmetrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-segmetrics/confusion"
)

func TestAccumulator_Lifecycle(t *testing.T) {
	ds := randomDataset(20, 2, 2, 2, 2)
	ev, err := New(confusion.Multiclass, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	l, err := ev.plan(context.Background(), ds)
	require.NoError(t, err)

	acc := ev.newAccumulator(l, 0)
	assert.Equal(t, stateInit, acc.state)

	_, err = ev.finalize(acc)
	assert.ErrorIs(t, err, ErrEmptyDataset, "nothing to finalize before the first sample")

	require.NoError(t, acc.add(ds[0]))
	assert.Equal(t, stateScanning, acc.state)
	require.NoError(t, acc.add(ds[1]))

	_, err = ev.finalize(acc)
	require.NoError(t, err)
	assert.Equal(t, stateDone, acc.state)

	assert.ErrorIs(t, acc.add(ds[0]), ErrFinalized)
	_, err = ev.finalize(acc)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, acc.merge(ev.newAccumulator(l, 2)), ErrFinalized)
}

func TestAccumulator_OneVsRestTotals(t *testing.T) {
	const n, h, w = 3, 3, 4
	ds := randomMultilabel(21, n, h, w, 2)
	ev, err := New(confusion.Multilabel, nil, WithThresholds(0, 0.25, 1), WithLogger(quietLogger()))
	require.NoError(t, err)
	l, err := ev.plan(context.Background(), ds)
	require.NoError(t, err)

	acc := ev.newAccumulator(l, 0)
	for _, s := range ds {
		require.NoError(t, acc.add(s))
	}

	// Thresholds 0, 0.25, 0.5 (operating) and 1.
	assert.Equal(t, []float64{0, 0.25, 0.5, 1}, acc.thresholds)
	assert.Equal(t, 2, acc.operating)

	for c, row := range acc.oneVsRest {
		var positives float64
		for k, q := range row {
			assert.Equal(t, float64(n*h*w), q.Total(), "class %d threshold %d", c, k)
			positives = q.TP + q.FN
		}
		assert.Equal(t, acc.positives[c], positives, "class %d", c)
		last := row[len(row)-1]
		assert.Zero(t, last.TP+last.FP, "nothing exceeds 1")
	}
}

func TestAccumulator_DisabledParts(t *testing.T) {
	ds := randomDataset(22, 3, 2, 2, 2)
	ev, err := New(confusion.Multiclass, nil,
		WithPatchMetrics(false),
		WithCalibration(false),
		WithCurves(false),
		WithNormalize(false),
		WithLogger(quietLogger()))
	require.NoError(t, err)

	r, err := ev.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Nil(t, r.Patches)
	assert.Nil(t, r.PatchSummary)
	assert.Nil(t, r.MetricHistograms, "histograms need per-sample rows")
	assert.Nil(t, r.Calibration)
	assert.Nil(t, r.Curves)
	assert.Nil(t, r.NormalizedJointMatrix)
	assert.Nil(t, r.NormalizedClassMatrices)
	assert.NotNil(t, r.JointMatrix)
}
