// Package dataset loads segmentation samples from a directory of masks and
// a directory of predictions, on local disk or in Google Cloud Storage
// (gs://bucket/prefix).
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

const gcsScheme = "gs://"

// DefaultExtensions lists the file extensions considered images.
var DefaultExtensions = []string{".png", ".tif", ".tiff", ".bmp", ".gif", ".jpg", ".jpeg"}

// Option configures a Dir.
type Option func(*config)

type config struct {
	classes    int
	extensions []string
	client     *storage.Client
	logger     *slog.Logger
}

func defaultConfig() config {
	return config{
		extensions: DefaultExtensions,
		logger:     slog.Default(),
	}
}

// WithOneHot declares masks as single-channel class-index images and
// expands them to one channel per class.
func WithOneHot(classes int) Option {
	return func(c *config) {
		c.classes = classes
	}
}

// WithExtensions restricts the files considered images (default:
// DefaultExtensions). Matching ignores case.
func WithExtensions(exts ...string) Option {
	return func(c *config) {
		if len(exts) > 0 {
			c.extensions = exts
		}
	}
}

// WithStorageClient sets the client used for gs:// paths. Without one, a
// client with default credentials is created on demand and closed by
// Close.
func WithStorageClient(client *storage.Client) Option {
	return func(c *config) {
		c.client = client
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

// Dir is a segmetrics.Dataset over two directories whose files are paired
// by name. It is safe for concurrent use.
type Dir struct {
	ids         []string
	masks       []string
	predictions []string
	cfg         config
	ownsClient  bool
}

// Open lists maskDir and predDir and pairs files with the same name, in
// sorted name order. Files present on only one side are logged and
// skipped.
func Open(ctx context.Context, maskDir, predDir string, opts ...Option) (*Dir, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dir{cfg: cfg}
	if cfg.client == nil && (isGCS(maskDir) || isGCS(predDir)) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		d.cfg.client = client
		d.ownsClient = true
	}

	maskNames, err := d.list(ctx, maskDir)
	if err != nil {
		_ = d.Close() // Best-effort cleanup; listing error takes precedence
		return nil, fmt.Errorf("listing masks: %w", err)
	}
	predNames, err := d.list(ctx, predDir)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("listing predictions: %w", err)
	}

	preds := make(map[string]bool, len(predNames))
	for _, name := range predNames {
		preds[name] = true
	}
	for _, name := range maskNames {
		if !preds[name] {
			cfg.logger.Warn("mask has no prediction, skipping", "file", name)
			continue
		}
		delete(preds, name)
		d.ids = append(d.ids, name)
		d.masks = append(d.masks, join(maskDir, name))
		d.predictions = append(d.predictions, join(predDir, name))
	}
	for _, name := range predNames {
		if preds[name] {
			cfg.logger.Warn("prediction has no mask, skipping", "file", name)
		}
	}

	if len(d.ids) == 0 {
		_ = d.Close()
		return nil, fmt.Errorf("%w: no matching files in %s and %s", segmetrics.ErrEmptyDataset, maskDir, predDir)
	}

	cfg.logger.Info("dataset opened", "masks", maskDir, "predictions", predDir, "samples", len(d.ids))
	return d, nil
}

// Len returns the number of paired samples.
func (d *Dir) Len() int {
	return len(d.ids)
}

// IDs returns the sample file names in scan order.
func (d *Dir) IDs() []string {
	return slices.Clone(d.ids)
}

// Sample loads and decodes pair i.
func (d *Dir) Sample(ctx context.Context, i int) (segmetrics.Sample, error) {
	if i < 0 || i >= len(d.ids) {
		return segmetrics.Sample{}, fmt.Errorf("dataset: sample index %d out of range [0, %d)", i, len(d.ids))
	}

	mask, err := d.load(ctx, d.masks[i])
	if err != nil {
		return segmetrics.Sample{}, fmt.Errorf("mask %s: %w", d.ids[i], err)
	}
	if d.cfg.classes > 0 {
		if mask, err = segmetrics.OneHot(mask, d.cfg.classes); err != nil {
			return segmetrics.Sample{}, fmt.Errorf("mask %s: %w", d.ids[i], err)
		}
	}

	pred, err := d.load(ctx, d.predictions[i])
	if err != nil {
		return segmetrics.Sample{}, fmt.Errorf("prediction %s: %w", d.ids[i], err)
	}

	return segmetrics.Sample{ID: d.ids[i], Mask: mask, Prediction: pred}, nil
}

// Close releases the storage client created by Open, if any.
func (d *Dir) Close() error {
	if !d.ownsClient || d.cfg.client == nil {
		return nil
	}
	err := d.cfg.client.Close()
	d.cfg.client = nil
	return err
}

func (d *Dir) load(ctx context.Context, name string) (segmetrics.Raster, error) {
	rc, err := d.open(ctx, name)
	if err != nil {
		return segmetrics.Raster{}, err
	}
	r, err := Decode(rc)
	return r, errors.Join(err, rc.Close())
}

func (d *Dir) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !isGCS(name) {
		return os.Open(name)
	}
	bucket, object, err := splitGCS(name)
	if err != nil {
		return nil, err
	}
	return d.cfg.client.Bucket(bucket).Object(object).NewReader(ctx)
}

// list returns the sorted image file names directly inside dir.
func (d *Dir) list(ctx context.Context, dir string) ([]string, error) {
	var names []string
	if isGCS(dir) {
		bucket, prefix, err := splitGCS(dir)
		if err != nil {
			return nil, err
		}
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		it := d.cfg.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, err
			}
			// Sub-directories come back with only Prefix set.
			if attrs.Name == "" {
				continue
			}
			names = append(names, path.Base(attrs.Name))
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}

	names = slices.DeleteFunc(names, func(name string) bool { return !d.isImage(name) })
	slices.Sort(names)
	return names, nil
}

func (d *Dir) isImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range d.cfg.extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func isGCS(p string) bool {
	return strings.HasPrefix(p, gcsScheme)
}

// splitGCS splits gs://bucket/object into its bucket and object names.
func splitGCS(p string) (bucket, object string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(p, gcsScheme), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("dataset: no bucket in %q", p)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

func join(dir, name string) string {
	if isGCS(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}
