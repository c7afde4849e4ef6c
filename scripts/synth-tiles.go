//go:build ignore

// Generate a synthetic segmentation dataset: class-index masks and noisy
// 8-bit per-class score images, paired by file name.
// Usage: go run ./scripts/synth-tiles.go -out testdata/synthetic
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

func main() {
	out := flag.String("out", "testdata/synthetic", "Output directory")
	tiles := flag.Int("tiles", 24, "Number of tiles")
	size := flag.Int("size", 64, "Tile width and height in pixels")
	noise := flag.Float64("noise", 0.25, "Fraction of pixels with a wrong top score")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	masks := filepath.Join(*out, "masks")
	preds := filepath.Join(*out, "preds")
	for _, dir := range []string{masks, preds} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	for i := 0; i < *tiles; i++ {
		mask, pred := tile(rng, *size, *noise)
		name := fmt.Sprintf("tile_%04d.png", i)
		if err := imaging.Save(mask, filepath.Join(masks, name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving mask: %v\n", err)
			os.Exit(1)
		}
		if err := imaging.Save(pred, filepath.Join(preds, name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving prediction: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Wrote %d tiles to %s\n", *tiles, *out)
}

// tile draws a background with a rectangular building and a water band.
// The prediction stores one class score per RGB channel.
func tile(rng *rand.Rand, size int, noise float64) (*image.Gray, *image.NRGBA) {
	mask := image.NewGray(image.Rect(0, 0, size, size))
	pred := imaging.New(size, size, color.NRGBA{A: 255})

	bx, by := rng.Intn(size/2), rng.Intn(size/2)
	bw, bh := size/4+rng.Intn(size/4), size/4+rng.Intn(size/4)
	wy := rng.Intn(size - size/8)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			class := uint8(0)
			switch {
			case x >= bx && x < bx+bw && y >= by && y < by+bh:
				class = 1
			case y >= wy && y < wy+size/8:
				class = 2
			}
			mask.SetGray(x, y, color.Gray{Y: class})

			top := class
			if rng.Float64() < noise {
				top = uint8(rng.Intn(3))
			}
			var scores [3]uint8
			for c := range scores {
				scores[c] = uint8(rng.Intn(80))
			}
			scores[top] = uint8(140 + rng.Intn(116))
			pred.SetNRGBA(x, y, color.NRGBA{R: scores[0], G: scores[1], B: scores[2], A: 255})
		}
	}
	return mask, pred
}
