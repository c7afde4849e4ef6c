package segmetrics

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// indexRaster builds a single-channel raster of class indices.
func indexRaster(h, w int, idx ...float32) Raster {
	r := NewRaster(h, w, 1)
	copy(r.Data, idx)
	return r
}

func oneHot(t *testing.T, r Raster, classes int) Raster {
	t.Helper()
	out, err := OneHot(r, classes)
	require.NoError(t, err)
	return out
}

// randomDataset returns multiclass samples with one-hot masks and
// per-pixel probability predictions that lean towards the true class.
func randomDataset(seed int64, n, h, w, classes int) SliceDataset {
	rng := rand.New(rand.NewSource(seed))
	ds := make(SliceDataset, n)
	for i := range ds {
		mask := NewRaster(h, w, classes)
		pred := NewRaster(h, w, classes)
		for p := 0; p < h*w; p++ {
			truth := rng.Intn(classes)
			mask.Data[p*classes+truth] = 1

			var sum float32
			for c := 0; c < classes; c++ {
				v := rng.Float32()
				if c == truth {
					v += 0.6
				}
				pred.Data[p*classes+c] = v
				sum += v
			}
			for c := 0; c < classes; c++ {
				pred.Data[p*classes+c] /= sum
			}
		}
		ds[i] = Sample{ID: fmt.Sprintf("tile_%03d", i), Mask: mask, Prediction: pred}
	}
	return ds
}

// randomMultilabel returns samples whose class channels are independent.
func randomMultilabel(seed int64, n, h, w, classes int) SliceDataset {
	rng := rand.New(rand.NewSource(seed))
	ds := make(SliceDataset, n)
	for i := range ds {
		mask := NewRaster(h, w, classes)
		pred := NewRaster(h, w, classes)
		for k := range mask.Data {
			if rng.Intn(3) == 0 {
				mask.Data[k] = 1
			}
			pred.Data[k] = rng.Float32()
		}
		ds[i] = Sample{ID: fmt.Sprintf("ml_%03d", i), Mask: mask, Prediction: pred}
	}
	return ds
}
