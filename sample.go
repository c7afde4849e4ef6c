package segmetrics

import (
	"context"
	"fmt"
)

// Shape is the (height, width, channels) layout of a raster.
type Shape struct {
	Height   int
	Width    int
	Channels int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Channels)
}

// Pixels returns Height*Width.
func (s Shape) Pixels() int {
	return s.Height * s.Width
}

// Raster is a row-major, channel-last (H, W, C) array. A single-channel
// raster stands for an (H, W) image.
type Raster struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// NewRaster allocates a zeroed raster.
func NewRaster(height, width, channels int) Raster {
	return Raster{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, height*width*channels),
	}
}

// Shape returns the raster's layout.
func (r Raster) Shape() Shape {
	return Shape{Height: r.Height, Width: r.Width, Channels: r.Channels}
}

// At returns the value at row y, column x, channel c.
func (r Raster) At(y, x, c int) float32 {
	return r.Data[(y*r.Width+x)*r.Channels+c]
}

// Set stores v at row y, column x, channel c.
func (r Raster) Set(y, x, c int, v float32) {
	r.Data[(y*r.Width+x)*r.Channels+c] = v
}

// Channel copies channel c into dst, growing it as needed, and returns it.
func (r Raster) Channel(c int, dst []float32) []float32 {
	n := r.Height * r.Width
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	if r.Channels == 1 {
		copy(dst, r.Data)
		return dst
	}
	for p := range dst {
		dst[p] = r.Data[p*r.Channels+c]
	}
	return dst
}

func (r Raster) wellFormed() bool {
	return r.Height > 0 && r.Width > 0 && r.Channels > 0 && len(r.Data) == r.Height*r.Width*r.Channels
}

// OneHot expands a single-channel raster of class indices into a raster
// with one channel per class.
func OneHot(r Raster, classes int) (Raster, error) {
	if r.Channels != 1 {
		return Raster{}, fmt.Errorf("%w: one-hot source has %d channels", ErrInvalidConfig, r.Channels)
	}
	out := NewRaster(r.Height, r.Width, classes)
	for p, v := range r.Data {
		c := int(v)
		if float32(c) != v || c < 0 || c >= classes {
			return Raster{}, fmt.Errorf("%w: class index %g outside [0, %d)", ErrInvalidConfig, v, classes)
		}
		out.Data[p*classes+c] = 1
	}
	return out, nil
}

// Sample pairs a ground-truth mask with a prediction.
type Sample struct {
	ID         string
	Mask       Raster
	Prediction Raster
}

// Dataset is a finite, indexable source of samples.
type Dataset interface {
	Len() int
	Sample(ctx context.Context, i int) (Sample, error)
}

// SliceDataset serves samples held in memory.
type SliceDataset []Sample

// Len returns the number of samples.
func (d SliceDataset) Len() int {
	return len(d)
}

// Sample returns sample i.
func (d SliceDataset) Sample(_ context.Context, i int) (Sample, error) {
	if i < 0 || i >= len(d) {
		return Sample{}, fmt.Errorf("segmetrics: sample index %d out of range [0, %d)", i, len(d))
	}
	return d[i], nil
}
