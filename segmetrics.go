package segmetrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-segmetrics/calibration"
	"github.com/jamesainslie/go-segmetrics/confusion"
)

// progressEvery is the number of samples between progress log lines.
const progressEvery = 1000

// Evaluator scans datasets of (mask, prediction) pairs and reports
// confusion matrices and the metrics derived from them.
//
// An Evaluator holds no scan state and is safe for concurrent use.
type Evaluator struct {
	mode       confusion.Mode
	labels     []string
	thresholds []float64
	operating  int
	edges      []float64
	scale      float64
	cfg        config
	logger     *slog.Logger
}

// New creates an Evaluator for mode.
//
// labels names the classes in channel order. For Binary it names the
// negative and positive class; nil selects "class 1" and "class 2". For
// Multiclass and Multilabel nil synthesizes "class 1".."class C" from the
// first sample.
func New(mode confusion.Mode, labels []string, opts ...Option) (*Evaluator, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, mode)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Evaluator{
		mode:   mode,
		labels: slices.Clone(labels),
		cfg:    cfg,
		logger: cfg.logger,
	}

	if err := e.resolveLabels(); err != nil {
		return nil, err
	}
	if err := e.resolveScale(); err != nil {
		return nil, err
	}
	if err := e.resolveThresholds(); err != nil {
		return nil, err
	}
	if err := e.resolveEdges(); err != nil {
		return nil, err
	}

	if cfg.batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidConfig, cfg.batchSize)
	}
	if cfg.workers < 1 {
		return nil, fmt.Errorf("%w: %d workers", ErrInvalidConfig, cfg.workers)
	}
	for i, w := range cfg.weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: weight %d is negative", ErrInvalidConfig, i)
		}
	}
	if mode == confusion.Binary && cfg.weights != nil {
		return nil, fmt.Errorf("%w: class weights need multiclass or multilabel mode", ErrInvalidConfig)
	}
	if e.labels != nil && cfg.weights != nil && len(cfg.weights) != len(e.labels) {
		return nil, fmt.Errorf("%w: %d weights for %d classes", ErrInvalidConfig, len(cfg.weights), len(e.labels))
	}

	return e, nil
}

func (e *Evaluator) resolveLabels() error {
	if e.mode == confusion.Binary && e.labels == nil {
		e.labels = defaultLabels(2)
	}
	if e.labels == nil {
		return nil
	}

	switch {
	case e.mode == confusion.Binary && len(e.labels) != 2:
		return fmt.Errorf("%w: binary mode takes 2 labels, got %d", ErrInvalidConfig, len(e.labels))
	case e.mode == confusion.Multiclass && len(e.labels) < 2:
		return fmt.Errorf("%w: multiclass mode needs at least 2 labels, got %d", ErrInvalidConfig, len(e.labels))
	case len(e.labels) == 0:
		return fmt.Errorf("%w: empty label list", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(e.labels))
	for _, l := range e.labels {
		if seen[l] {
			return fmt.Errorf("%w: duplicate label %q", ErrInvalidConfig, l)
		}
		seen[l] = true
	}
	return nil
}

func (e *Evaluator) resolveScale() error {
	divisor, ok := bitDepths[e.cfg.bitDepth]
	if !ok {
		e.logger.Warn("unknown bit depth, using default",
			"bit_depth", e.cfg.bitDepth,
			"default", DefaultBitDepth,
			"known", BitDepths())
		e.cfg.bitDepth = DefaultBitDepth
		divisor = bitDepths[DefaultBitDepth]
	}
	e.scale = 1
	if !e.cfg.inProbRange {
		e.scale = divisor
	}
	return nil
}

func (e *Evaluator) resolveThresholds() error {
	var (
		ts  []float64
		err error
	)
	if e.cfg.thresholds != nil {
		if len(e.cfg.thresholds) == 0 {
			return fmt.Errorf("%w: empty threshold set", ErrInvalidConfig)
		}
		ts, err = withOperating(e.cfg.thresholds, e.cfg.threshold)
	} else {
		ts, err = SweepThresholds(e.cfg.thresholdCount, e.cfg.threshold)
	}
	if err != nil {
		return err
	}
	e.thresholds = ts
	e.operating = slices.Index(ts, e.cfg.threshold)
	return nil
}

// resolveEdges builds the calibration edges in probability units. Explicit
// bins and bit-depth derived bins are given in raw prediction units.
func (e *Evaluator) resolveEdges() error {
	var (
		edges []float64
		err   error
	)
	switch {
	case e.cfg.bins != nil:
		edges = slices.Clone(e.cfg.bins)
	case e.scale != 1:
		edges, err = calibration.Scaled(e.cfg.binCount, e.scale)
	default:
		edges, err = calibration.Uniform(e.cfg.binCount)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if e.scale != 1 {
		for i := range edges {
			edges[i] /= e.scale
		}
	}
	if err := calibration.Validate(edges); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e.edges = edges
	return nil
}

// Mode returns the evaluation mode.
func (e *Evaluator) Mode() confusion.Mode {
	return e.mode
}

// Thresholds returns the ascending threshold set, operating threshold
// included.
func (e *Evaluator) Thresholds() []float64 {
	return slices.Clone(e.thresholds)
}

// Edges returns the calibration bin edges in probability units.
func (e *Evaluator) Edges() []float64 {
	return slices.Clone(e.edges)
}

// layout is the data layout a scan commits to on its first sample.
type layout struct {
	shape  Shape
	labels []string
	// size is the length of the whole dataset, whatever part is scanned.
	size   int
}

func defaultLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("class %d", i+1)
	}
	return labels
}

// plan checks the dataset against the configuration and fixes the layout
// from the first sample.
func (e *Evaluator) plan(ctx context.Context, ds Dataset) (layout, error) {
	n := ds.Len()
	if n == 0 {
		return layout{}, ErrEmptyDataset
	}
	if e.cfg.batchSize > n {
		return layout{}, fmt.Errorf("%w: batch size %d, %d samples", ErrBatchTooLarge, e.cfg.batchSize, n)
	}

	first, err := ds.Sample(ctx, 0)
	if err != nil {
		return layout{}, fmt.Errorf("loading sample 0: %w", err)
	}
	shape := first.Mask.Shape()
	labels := e.labels

	switch {
	case e.mode == confusion.Binary:
		if shape.Channels != 1 {
			return layout{}, &ShapeError{ID: first.ID, Raster: "mask", Expected: Shape{shape.Height, shape.Width, 1}, Actual: shape}
		}
	case labels == nil:
		if e.mode == confusion.Multiclass && shape.Channels < 2 {
			return layout{}, fmt.Errorf("%w: multiclass masks need at least 2 channels, got %d", ErrInvalidConfig, shape.Channels)
		}
		labels = defaultLabels(shape.Channels)
	case len(labels) != shape.Channels:
		return layout{}, &ShapeError{ID: first.ID, Raster: "mask", Expected: Shape{shape.Height, shape.Width, len(labels)}, Actual: shape}
	}

	if e.cfg.weights != nil && e.mode != confusion.Binary && len(e.cfg.weights) != shape.Channels {
		return layout{}, fmt.Errorf("%w: %d weights for %d classes", ErrInvalidConfig, len(e.cfg.weights), shape.Channels)
	}

	return layout{shape: shape, labels: labels, size: n}, nil
}

// Run scans every sample of ds in order and returns the report.
func (e *Evaluator) Run(ctx context.Context, ds Dataset) (*Report, error) {
	l, err := e.plan(ctx, ds)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.logger.Info("scan started",
		"mode", e.mode,
		"samples", ds.Len(),
		"classes", len(l.labels),
		"thresholds", len(e.thresholds))

	acc := e.newAccumulator(l, 0)
	if err := e.scan(ctx, ds, acc, 0, ds.Len()); err != nil {
		return nil, err
	}

	r, err := e.finalize(acc)
	if err != nil {
		return nil, err
	}
	e.logger.Info("scan finished", "samples", r.Samples, "elapsed", time.Since(start))
	return r, nil
}

// RunSharded splits ds into contiguous shards scanned concurrently, then
// sums the shard results in order. Reports from runs with the same shard
// count are identical; across shard counts floating-point sums may differ
// in the last bits.
func (e *Evaluator) RunSharded(ctx context.Context, ds Dataset, shards int) (*Report, error) {
	if shards < 1 {
		return nil, fmt.Errorf("%w: %d shards", ErrInvalidConfig, shards)
	}
	l, err := e.plan(ctx, ds)
	if err != nil {
		return nil, err
	}

	n := ds.Len()
	shards = min(shards, n)
	start := time.Now()
	e.logger.Info("sharded scan started",
		"mode", e.mode,
		"samples", n,
		"shards", shards,
		"classes", len(l.labels),
		"thresholds", len(e.thresholds))

	accs := make([]*accumulator, shards)
	g, gctx := errgroup.WithContext(ctx)
	for i := range accs {
		i := i
		lo, hi := shardBounds(n, shards, i)
		accs[i] = e.newAccumulator(l, lo)
		g.Go(func() error {
			return e.scan(gctx, ds, accs[i], lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := e.newAccumulator(l, 0)
	for _, acc := range accs {
		if err := total.merge(acc); err != nil {
			return nil, err
		}
	}

	r, err := e.finalize(total)
	if err != nil {
		return nil, err
	}
	e.logger.Info("sharded scan finished", "samples", r.Samples, "elapsed", time.Since(start))
	return r, nil
}

// ScanShard scans shard i of total contiguous shards of ds and returns the
// unfinalized result, for merging in another process.
func (e *Evaluator) ScanShard(ctx context.Context, ds Dataset, i, total int) (*Partial, error) {
	n := ds.Len()
	if total < 1 || total > max(n, 1) || i < 0 || i >= total {
		return nil, fmt.Errorf("%w: shard %d of %d over %d samples", ErrInvalidConfig, i, total, n)
	}
	l, err := e.plan(ctx, ds)
	if err != nil {
		return nil, err
	}

	lo, hi := shardBounds(n, total, i)
	e.logger.Info("shard scan started", "shard", i, "shards", total, "first", lo, "end", hi)

	acc := e.newAccumulator(l, lo)
	if err := e.scan(ctx, ds, acc, lo, hi); err != nil {
		return nil, err
	}
	return &Partial{acc: acc}, nil
}

// Merge sums partial results produced by ScanShard with a compatible
// Evaluator and finalizes them into a report. Partials are summed in
// sample order whatever order they are passed in, and together they must
// cover every sample of the dataset exactly once.
func (e *Evaluator) Merge(parts ...*Partial) (*Report, error) {
	if len(parts) == 0 {
		return nil, ErrEmptyDataset
	}
	sorted := slices.Clone(parts)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].acc.first < sorted[b].acc.first })

	head := sorted[0].acc
	if err := e.accepts(head); err != nil {
		return nil, err
	}
	total := e.newAccumulator(layout{shape: head.shape, labels: head.labels, size: head.size}, 0)

	end := 0
	for _, p := range sorted {
		switch {
		case p.acc.first < end:
			return nil, fmt.Errorf("%w: shard starting at %d overlaps samples up to %d", ErrIncompatiblePartial, p.acc.first, end)
		case p.acc.first > end:
			return nil, fmt.Errorf("%w: samples %d to %d are missing", ErrIncompatiblePartial, end, p.acc.first)
		}
		end = p.acc.first + p.acc.samples
		if err := total.merge(p.acc); err != nil {
			return nil, err
		}
	}
	if end != total.size {
		return nil, fmt.Errorf("%w: shards cover %d of %d samples", ErrIncompatiblePartial, end, total.size)
	}

	e.logger.Info("partials merged", "parts", len(parts), "samples", total.samples)
	return e.finalize(total)
}

// accepts reports whether a partial was scanned under this configuration.
func (e *Evaluator) accepts(a *accumulator) error {
	switch {
	case a.mode != e.mode:
		return fmt.Errorf("%w: mode %v, want %v", ErrIncompatiblePartial, a.mode, e.mode)
	case !slices.Equal(a.thresholds, e.thresholds):
		return fmt.Errorf("%w: threshold sets differ", ErrIncompatiblePartial)
	case !slices.Equal(a.edges, e.edges):
		return fmt.Errorf("%w: calibration edges differ", ErrIncompatiblePartial)
	case !slices.Equal(a.weights, e.cfg.weights):
		return fmt.Errorf("%w: class weights differ", ErrIncompatiblePartial)
	case a.scale != e.scale:
		return fmt.Errorf("%w: prediction scale %g, want %g", ErrIncompatiblePartial, a.scale, e.scale)
	case a.patchMetrics != e.cfg.patchMetrics || a.withCalibration != e.cfg.calibration:
		return fmt.Errorf("%w: per-sample or calibration settings differ", ErrIncompatiblePartial)
	case e.labels != nil && !slices.Equal(a.labels, e.labels):
		return fmt.Errorf("%w: labels %v, want %v", ErrIncompatiblePartial, a.labels, e.labels)
	}
	return nil
}

// scan feeds samples [lo, hi) of ds into acc.
func (e *Evaluator) scan(ctx context.Context, ds Dataset, acc *accumulator, lo, hi int) error {
	p := newPrefetcher(ctx, ds, lo, hi, e.cfg.batchSize, e.cfg.workers)
	defer p.Close()

	for {
		batch, err := p.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		for _, s := range batch {
			if err := acc.add(s); err != nil {
				return err
			}
			if acc.samples%progressEvery == 0 {
				e.logger.Debug("scan progress", "samples", acc.samples, "first", lo, "end", hi)
			}
		}
	}
	return ctx.Err()
}

// shardBounds returns the sample range [lo, hi) of shard i.
func shardBounds(n, shards, i int) (lo, hi int) {
	return i * n / shards, (i + 1) * n / shards
}
