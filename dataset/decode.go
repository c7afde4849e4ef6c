package dataset

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

// Decode reads an image (PNG, TIFF, BMP, GIF or JPEG) into a raster.
func Decode(r io.Reader) (segmetrics.Raster, error) {
	// Decoders swallow read errors, so the whole file is read first to
	// surface them.
	data, err := io.ReadAll(r)
	if err != nil {
		return segmetrics.Raster{}, fmt.Errorf("reading image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return segmetrics.Raster{}, fmt.Errorf("decoding image: %w", err)
	}
	return ToRaster(img), nil
}

// ToRaster converts an image into a raster of raw sample values.
//
// Gray and Gray16 images become one channel of 8- or 16-bit levels,
// paletted images one channel of palette indices (class masks are often
// stored that way). Everything else becomes R, G, B channels: 8-bit levels
// for NRGBA and RGBA images, 16-bit levels otherwise. Alpha is dropped.
func ToRaster(img image.Image) segmetrics.Raster {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	switch src := img.(type) {
	case *image.Gray:
		r := segmetrics.NewRaster(h, w, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Data[y*w+x] = float32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return r
	case *image.Gray16:
		r := segmetrics.NewRaster(h, w, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Data[y*w+x] = float32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return r
	case *image.Paletted:
		r := segmetrics.NewRaster(h, w, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r.Data[y*w+x] = float32(src.ColorIndexAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return r
	case *image.NRGBA:
		r := segmetrics.NewRaster(h, w, 3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.NRGBAAt(b.Min.X+x, b.Min.Y+y)
				setRGB(r, y, x, float32(c.R), float32(c.G), float32(c.B))
			}
		}
		return r
	case *image.RGBA:
		r := segmetrics.NewRaster(h, w, 3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.RGBAAt(b.Min.X+x, b.Min.Y+y)
				setRGB(r, y, x, float32(c.R), float32(c.G), float32(c.B))
			}
		}
		return r
	}

	r := segmetrics.NewRaster(h, w, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			setRGB(r, y, x, float32(c.R), float32(c.G), float32(c.B))
		}
	}
	return r
}

func setRGB(r segmetrics.Raster, y, x int, red, green, blue float32) {
	r.Set(y, x, 0, red)
	r.Set(y, x, 1, green)
	r.Set(y, x, 2, blue)
}
