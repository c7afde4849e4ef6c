package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-segmetrics/dataset"
	"github.com/jamesainslie/go-segmetrics/internal/runconfig"
)

// evalFlags are the evaluation flags shared by run, scan and merge. Flags
// given on the command line override the run file.
type evalFlags struct {
	config      string
	masks       string
	preds       string
	mode        string
	labels      []string
	threshold   float64
	nThresholds int
	bitDepth    string
	inProbRange bool
	nBins       int
	weights     []float64
	workers     int
	batchSize   int
	oneHot      bool
}

func (f *evalFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "YAML run file")
	fs.StringVar(&f.masks, "masks", "", "Directory of ground-truth masks (local or gs://)")
	fs.StringVar(&f.preds, "preds", "", "Directory of predictions (local or gs://)")
	fs.StringVarP(&f.mode, "type", "t", "", "binary, multiclass or multilabel (default multiclass)")
	fs.StringSliceVar(&f.labels, "labels", nil, "Class labels, in channel order")
	fs.Float64Var(&f.threshold, "threshold", 0.5, "Operating threshold")
	fs.IntVar(&f.nThresholds, "n-thresholds", 10, "Number of thresholds for the curves")
	fs.StringVar(&f.bitDepth, "bit-depth", "8 bits", "Bit depth of raw predictions")
	fs.BoolVar(&f.inProbRange, "in-prob-range", true, "Predictions are probabilities in [0, 1]")
	fs.IntVar(&f.nBins, "n-bins", 10, "Number of calibration bins")
	fs.Float64SliceVar(&f.weights, "weights", nil, "Class weights for the user weighted average")
	fs.IntVarP(&f.workers, "workers", "j", 1, "Sample loading workers")
	fs.IntVar(&f.batchSize, "batch-size", 1, "Samples loaded per batch")
	fs.BoolVar(&f.oneHot, "one-hot", false, "Masks hold class indices to expand to one channel per class")
}

// resolve loads the run file, if any, and applies the flags that were set.
func (f *evalFlags) resolve(cmd *cobra.Command) (runconfig.Config, error) {
	var cfg runconfig.Config
	if f.config != "" {
		var err error
		if cfg, err = runconfig.Load(f.config); err != nil {
			return runconfig.Config{}, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("masks") {
		cfg.Masks = f.masks
	}
	if changed("preds") {
		cfg.Predictions = f.preds
	}
	if changed("type") {
		cfg.Type = f.mode
	}
	if changed("labels") {
		cfg.Labels = f.labels
	}
	if changed("threshold") {
		cfg.Threshold = &f.threshold
	}
	if changed("n-thresholds") {
		cfg.NThresholds = &f.nThresholds
	}
	if changed("bit-depth") {
		cfg.BitDepth = f.bitDepth
	}
	if changed("in-prob-range") {
		cfg.InProbRange = &f.inProbRange
	}
	if changed("n-bins") {
		cfg.NBins = &f.nBins
	}
	if changed("weights") {
		cfg.Weights = f.weights
	}
	if changed("workers") {
		cfg.Workers = &f.workers
	}
	if changed("batch-size") {
		cfg.BatchSize = &f.batchSize
	}
	if changed("one-hot") {
		cfg.OneHotMasks = f.oneHot
	}

	if _, err := cfg.Mode(); err != nil {
		return runconfig.Config{}, err
	}
	return cfg, nil
}

func openDataset(ctx context.Context, cfg runconfig.Config, logger *slog.Logger) (*dataset.Dir, error) {
	if cfg.Masks == "" || cfg.Predictions == "" {
		return nil, errors.New("--masks and --preds are required")
	}
	opts := []dataset.Option{dataset.WithLogger(logger)}
	if cfg.OneHotMasks {
		if len(cfg.Labels) == 0 {
			return nil, errors.New("one-hot masks need the class labels")
		}
		opts = append(opts, dataset.WithOneHot(len(cfg.Labels)))
	}
	return dataset.Open(ctx, cfg.Masks, cfg.Predictions, opts...)
}
