package runconfig

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	segmetrics "github.com/jamesainslie/go-segmetrics"
	"github.com/jamesainslie/go-segmetrics/confusion"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const sample = `
type: binary
labels: [other, building]
masks: gs://tiles/masks
predictions: gs://tiles/preds
threshold: 0.4
thresholds: [0.2, 0.8]
bit_depth: 16 bits
in_prob_range: false
n_bins: 4
metrics_per_patch: false
roc_pr_curves: false
num_workers: 3
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, confusion.Binary, mode)
	assert.Equal(t, []string{"other", "building"}, cfg.Labels)
	assert.Equal(t, "gs://tiles/masks", cfg.Masks)
	require.NotNil(t, cfg.Threshold)
	assert.Equal(t, 0.4, *cfg.Threshold)
	require.NotNil(t, cfg.InProbRange)
	assert.False(t, *cfg.InProbRange)
	assert.Nil(t, cfg.Calibration)
	assert.Nil(t, cfg.BatchSize)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "tresholds: [0.5]\n"},
		{"unknown type", "type: panoptic\n"},
		{"bad value", "n_bins: ten\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, DefaultMode, mode)
	assert.Len(t, cfg.Options(quiet), 1)
}

func TestEvaluator(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	ev, err := cfg.Evaluator(quiet)
	require.NoError(t, err)
	assert.Equal(t, confusion.Binary, ev.Mode())
	assert.Equal(t, []float64{0.2, 0.4, 0.8}, ev.Thresholds())
	// n_bins over 16-bit raw values, back in probability units.
	edges := ev.Edges()
	assert.Len(t, edges, 5)
	assert.Equal(t, 1.0, edges[len(edges)-1])
}

func TestEvaluator_InvalidOptions(t *testing.T) {
	cfg, err := Parse([]byte("type: multiclass\nlabels: [a, b]\nweights: [1]\n"))
	require.NoError(t, err)
	_, err = cfg.Evaluator(quiet)
	assert.ErrorIs(t, err, segmetrics.ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "16 bits", cfg.BitDepth)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
