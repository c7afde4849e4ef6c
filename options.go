package segmetrics

import (
	"log/slog"
	"runtime"
	"slices"
)

// DefaultBitDepth is used when no bit depth, or an unknown one, is given.
const DefaultBitDepth = "8 bits"

// bitDepths maps bit-depth tags to the value that scales raw pixels into
// [0, 1].
var bitDepths = map[string]float64{
	"keep":    1,
	"8 bits":  255,
	"12 bits": 4095,
	"14 bits": 16383,
	"16 bits": 65535,
}

// BitDepths returns the recognized bit-depth tags.
func BitDepths() []string {
	tags := make([]string, 0, len(bitDepths))
	for tag := range bitDepths {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Option configures an Evaluator.
type Option func(*config)

type config struct {
	threshold        float64
	thresholdCount   int
	thresholds       []float64
	bitDepth         string
	inProbRange      bool
	bins             []float64
	binCount         int
	weights          []float64
	patchMetrics     bool
	curves           bool
	calibration      bool
	metricHistograms bool
	normalize        bool
	batchSize        int
	workers          int
	logger           *slog.Logger
}

func defaultConfig() config {
	return config{
		threshold:        0.5,
		thresholdCount:   10,
		bitDepth:         DefaultBitDepth,
		inProbRange:      true,
		binCount:         10,
		patchMetrics:     true,
		curves:           true,
		calibration:      true,
		metricHistograms: true,
		normalize:        true,
		batchSize:        1,
		workers:          1,
		logger:           slog.Default(),
	}
}

// WithThreshold sets the operating threshold (default: 0.5).
func WithThreshold(t float64) Option {
	return func(c *config) {
		c.threshold = t
	}
}

// WithThresholdCount sets how many evenly spaced thresholds in [0, 1] the
// curves are sampled at (default: 10).
func WithThresholdCount(n int) Option {
	return func(c *config) {
		c.thresholdCount = n
	}
}

// WithThresholds replaces the evenly spaced thresholds with an explicit set.
func WithThresholds(ts ...float64) Option {
	return func(c *config) {
		c.thresholds = append([]float64{}, ts...)
	}
}

// WithBitDepth sets the raw value range of predictions, one of BitDepths()
// (default: "8 bits"). Unknown tags fall back to the default with a warning.
func WithBitDepth(tag string) Option {
	return func(c *config) {
		c.bitDepth = tag
	}
}

// WithInProbRange declares whether predictions are already probabilities
// (default: true). When false they are divided by the bit-depth maximum.
func WithInProbRange(ok bool) Option {
	return func(c *config) {
		c.inProbRange = ok
	}
}

// WithBins sets explicit calibration bin edges, in prediction units.
func WithBins(edges ...float64) Option {
	return func(c *config) {
		c.bins = append([]float64{}, edges...)
	}
}

// WithBinCount sets the number of uniform calibration bins (default: 10).
func WithBinCount(n int) Option {
	return func(c *config) {
		c.binCount = n
	}
}

// WithWeights sets per-class weights for the user-weighted averages and the
// micro matrix.
func WithWeights(ws ...float64) Option {
	return func(c *config) {
		c.weights = append([]float64{}, ws...)
	}
}

// WithPatchMetrics toggles per-sample metric rows (default: true).
func WithPatchMetrics(on bool) Option {
	return func(c *config) {
		c.patchMetrics = on
	}
}

// WithCurves toggles ROC and precision-recall curves (default: true).
func WithCurves(on bool) Option {
	return func(c *config) {
		c.curves = on
	}
}

// WithCalibration toggles calibration curves (default: true).
func WithCalibration(on bool) Option {
	return func(c *config) {
		c.calibration = on
	}
}

// WithMetricHistograms toggles histograms of per-sample metrics
// (default: true). They need per-sample metrics.
func WithMetricHistograms(on bool) Option {
	return func(c *config) {
		c.metricHistograms = on
	}
}

// WithNormalize toggles row-normalized copies of the confusion matrices
// (default: true).
func WithNormalize(on bool) Option {
	return func(c *config) {
		c.normalize = on
	}
}

// WithBatchSize sets how many samples are loaded together (default: 1).
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithWorkers sets the number of concurrent sample loaders (default: 1).
// Zero or less selects runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *config) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		c.workers = n
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
