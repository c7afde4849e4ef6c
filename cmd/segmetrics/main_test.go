package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	segmetrics "github.com/jamesainslie/go-segmetrics"
	"github.com/jamesainslie/go-segmetrics/internal/export"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeTiles writes n binary 4x4 tiles: masks of 0/1 levels and 8-bit
// predictions.
func writeTiles(t *testing.T, n int) (masks, preds string) {
	t.Helper()
	root := t.TempDir()
	masks = filepath.Join(root, "masks")
	preds = filepath.Join(root, "preds")
	require.NoError(t, os.MkdirAll(masks, 0o755))
	require.NoError(t, os.MkdirAll(preds, 0o755))

	for k := 0; k < n; k++ {
		m := image.NewGray(image.Rect(0, 0, 4, 4))
		p := image.NewGray(image.Rect(0, 0, 4, 4))
		for i := range m.Pix {
			if (i+k)%3 == 0 {
				m.Pix[i] = 1
				p.Pix[i] = uint8(150 + 10*(i%5))
			} else {
				p.Pix[i] = uint8(20 * (i % 7))
			}
		}
		name := string(rune('a'+k)) + ".png"
		require.NoError(t, imaging.Save(m, filepath.Join(masks, name)))
		require.NoError(t, imaging.Save(p, filepath.Join(preds, name)))
	}
	return masks, preds
}

func readReport(t *testing.T, path string) segmetrics.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r segmetrics.Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestRun(t *testing.T) {
	masks, preds := writeTiles(t, 3)
	out := filepath.Join(t.TempDir(), "metrics")

	stdout, err := execute(t, "run",
		"--masks", masks, "--preds", preds,
		"--type", "binary", "--labels", "other,building",
		"--in-prob-range=false", "--out", out)
	require.NoError(t, err)

	assert.Contains(t, stdout, "binary evaluation of 3 samples")
	assert.Contains(t, stdout, "building")
	for _, name := range []string{export.ReportJSON, export.PatchesCSV, export.Workbook, export.PatchesParquet} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	r := readReport(t, filepath.Join(out, export.ReportJSON))
	assert.Equal(t, 3, r.Samples)
	assert.Equal(t, []string{"other", "building"}, r.Labels)
	require.NotNil(t, r.Values)
}

func TestRun_ConfigFileAndOverride(t *testing.T) {
	masks, preds := writeTiles(t, 2)
	dir := t.TempDir()
	out := filepath.Join(dir, "from-config")
	config := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(config, []byte(
		"type: binary\nin_prob_range: false\nmasks: "+masks+"\npredictions: "+preds+
			"\noutput: "+out+"\nthreshold: 0.3\n"), 0o644))

	_, err := execute(t, "run", "--config", config, "--threshold", "0.6")
	require.NoError(t, err)

	r := readReport(t, filepath.Join(out, export.ReportJSON))
	assert.Equal(t, 0.6, r.Threshold)
	assert.Contains(t, r.Thresholds, 0.6)
	assert.NotContains(t, r.Thresholds, 0.3)
}

func TestScanAndMerge(t *testing.T) {
	masks, preds := writeTiles(t, 5)
	dir := t.TempDir()
	common := []string{"--masks", masks, "--preds", preds, "--type", "binary", "--in-prob-range=false"}

	var parts []string
	for _, shard := range []string{"0/2", "1/2"} {
		part := filepath.Join(dir, "part-"+shard[:1]+".bin")
		_, err := execute(t, append([]string{"scan", "--shard", shard, "--out", part}, common...)...)
		require.NoError(t, err)
		parts = append(parts, part)
	}

	merged := filepath.Join(dir, "merged")
	_, err := execute(t, append(append([]string{"merge", "--type", "binary", "--in-prob-range=false", "--out", merged}, parts[1]), parts[0])...)
	require.NoError(t, err)

	whole := filepath.Join(dir, "whole")
	_, err = execute(t, append([]string{"run", "--out", whole}, common...)...)
	require.NoError(t, err)

	got := readReport(t, filepath.Join(merged, export.ReportJSON))
	want := readReport(t, filepath.Join(whole, export.ReportJSON))
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Classes, got.Classes)
	assert.Equal(t, want.ThresholdMetrics, got.ThresholdMetrics)

	// Settings must match the scan.
	_, err = execute(t, "merge", "--type", "multilabel", "--out", merged, parts[0])
	assert.ErrorIs(t, err, segmetrics.ErrIncompatiblePartial)
}

func TestSweep(t *testing.T) {
	masks, preds := writeTiles(t, 2)
	out := filepath.Join(t.TempDir(), "metrics")
	_, err := execute(t, "run", "--masks", masks, "--preds", preds,
		"--type", "binary", "--in-prob-range=false", "--out", out)
	require.NoError(t, err)

	stdout, err := execute(t, "sweep", filepath.Join(out, export.ReportJSON), "--wr", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "wp=1.0, wr=2.0")
	assert.Contains(t, stdout, "class 2")
	assert.Contains(t, stdout, "Optimal:")

	_, err = execute(t, "sweep", filepath.Join(out, export.ReportJSON), "--class", "lake")
	assert.ErrorContains(t, err, "no class")
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "run", "--type", "binary")
	assert.ErrorContains(t, err, "--masks and --preds are required")

	_, err = execute(t, "run", "--type", "panoptic", "--masks", "m", "--preds", "p")
	assert.Error(t, err)
}

func TestParseShard(t *testing.T) {
	tests := []struct {
		in      string
		i, n    int
		wantErr bool
	}{
		{in: "0/1", i: 0, n: 1},
		{in: "3/4", i: 3, n: 4},
		{in: "4/4", wantErr: true},
		{in: "-1/4", wantErr: true},
		{in: "1", wantErr: true},
		{in: "a/2", wantErr: true},
		{in: "0/0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			i, n, err := parseShard(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.i, i)
			assert.Equal(t, tt.n, n)
		})
	}
}
