// Package runconfig loads the YAML run file of the segmetrics CLI and maps
// it onto evaluator options.
//
// Every key is optional. Keys left out keep the evaluator defaults.
//
//	type: multiclass
//	labels: [background, building, road]
//	threshold: 0.5
//	n_thresholds: 10
//	bit_depth: 8 bits
//	in_prob_range: false
//	n_bins: 10
//	weights: [0.2, 1, 1]
//	metrics_per_patch: true
//	num_workers: 8
package runconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	segmetrics "github.com/jamesainslie/go-segmetrics"
	"github.com/jamesainslie/go-segmetrics/confusion"
)

// DefaultMode is used when the run file has no type.
const DefaultMode = confusion.Multiclass

// Config is the content of a run file. Pointer fields distinguish an
// explicit zero from an absent key.
type Config struct {
	Type        string   `yaml:"type"`
	Labels      []string `yaml:"labels"`
	Masks       string   `yaml:"masks"`
	Predictions string   `yaml:"predictions"`
	Output      string   `yaml:"output"`
	OneHotMasks bool     `yaml:"one_hot_masks"`

	Threshold   *float64  `yaml:"threshold"`
	Thresholds  []float64 `yaml:"thresholds"`
	NThresholds *int      `yaml:"n_thresholds"`

	BitDepth    string    `yaml:"bit_depth"`
	InProbRange *bool     `yaml:"in_prob_range"`
	Bins        []float64 `yaml:"bins"`
	NBins       *int      `yaml:"n_bins"`
	Weights     []float64 `yaml:"weights"`

	PatchMetrics     *bool `yaml:"metrics_per_patch"`
	Curves           *bool `yaml:"roc_pr_curves"`
	Calibration      *bool `yaml:"calibration_curves"`
	MetricHistograms *bool `yaml:"hists_per_metrics"`
	Normalize        *bool `yaml:"normalize"`

	BatchSize *int `yaml:"batch_size"`
	Workers   *int `yaml:"num_workers"`
}

// Load reads and validates the run file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading run file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a run file. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing run file: %w", err)
	}
	if _, err := cfg.Mode(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Mode returns the evaluation mode named by Type.
func (c Config) Mode() (confusion.Mode, error) {
	if c.Type == "" {
		return DefaultMode, nil
	}
	return confusion.ParseMode(c.Type)
}

// Options returns the evaluator options for every key that is set, with
// logger attached.
func (c Config) Options(logger *slog.Logger) []segmetrics.Option {
	opts := []segmetrics.Option{segmetrics.WithLogger(logger)}

	if c.Threshold != nil {
		opts = append(opts, segmetrics.WithThreshold(*c.Threshold))
	}
	if c.Thresholds != nil {
		opts = append(opts, segmetrics.WithThresholds(c.Thresholds...))
	}
	if c.NThresholds != nil {
		opts = append(opts, segmetrics.WithThresholdCount(*c.NThresholds))
	}
	if c.BitDepth != "" {
		opts = append(opts, segmetrics.WithBitDepth(c.BitDepth))
	}
	if c.InProbRange != nil {
		opts = append(opts, segmetrics.WithInProbRange(*c.InProbRange))
	}
	if c.Bins != nil {
		opts = append(opts, segmetrics.WithBins(c.Bins...))
	}
	if c.NBins != nil {
		opts = append(opts, segmetrics.WithBinCount(*c.NBins))
	}
	if c.Weights != nil {
		opts = append(opts, segmetrics.WithWeights(c.Weights...))
	}

	toggles := []struct {
		v   *bool
		opt func(bool) segmetrics.Option
	}{
		{c.PatchMetrics, segmetrics.WithPatchMetrics},
		{c.Curves, segmetrics.WithCurves},
		{c.Calibration, segmetrics.WithCalibration},
		{c.MetricHistograms, segmetrics.WithMetricHistograms},
		{c.Normalize, segmetrics.WithNormalize},
	}
	for _, t := range toggles {
		if t.v != nil {
			opts = append(opts, t.opt(*t.v))
		}
	}

	if c.BatchSize != nil {
		opts = append(opts, segmetrics.WithBatchSize(*c.BatchSize))
	}
	if c.Workers != nil {
		opts = append(opts, segmetrics.WithWorkers(*c.Workers))
	}
	return opts
}

// Evaluator builds an evaluator from the run file.
func (c Config) Evaluator(logger *slog.Logger) (*segmetrics.Evaluator, error) {
	mode, err := c.Mode()
	if err != nil {
		return nil, err
	}
	return segmetrics.New(mode, c.Labels, c.Options(logger)...)
}
