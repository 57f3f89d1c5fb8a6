// Package normalize prepares rendered pages for OCR.
package normalize

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/toricodesthings/pdfocr/internal/raster"
)

type Options struct {
	// Kernel is "catmullrom" (default), "bilinear" or "nearest".
	Kernel    string
	Grayscale bool
}

// ErrReleased is returned when Normalize is handed an image whose pixels are
// already gone.
var ErrReleased = errors.New("raster image already released")

// Normalize bounds img so neither side exceeds maxDim, preserving the aspect
// ratio. maxDim <= 0 disables scaling. img is always released before
// Normalize returns; when no scaling or conversion is needed the result
// shares its pixel buffer.
func Normalize(img *raster.Image, maxDim int, opts Options) (image.Image, error) {
	defer img.Release()

	src := img.Take()
	if src == nil {
		return nil, ErrReleased
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	tw, th := FitWithin(w, h, maxDim)

	var out image.Image = src
	if tw != w || th != h {
		scaler, err := kernel(opts.Kernel)
		if err != nil {
			return nil, err
		}
		dst := image.NewRGBA(image.Rect(0, 0, tw, th))
		scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		out = dst
	}

	if opts.Grayscale {
		out = toGray(out)
	}
	return out, nil
}

// FitWithin returns the largest size with the aspect ratio of w x h whose
// longer side is at most maxDim. Sizes already within bounds are unchanged.
func FitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		nh := int(float64(h)*float64(maxDim)/float64(w) + 0.5)
		return maxDim, max(nh, 1)
	}
	nw := int(float64(w)*float64(maxDim)/float64(h) + 0.5)
	return max(nw, 1), maxDim
}

func kernel(name string) (draw.Scaler, error) {
	switch name {
	case "", "catmullrom":
		return draw.CatmullRom, nil
	case "bilinear":
		return draw.ApproxBiLinear, nil
	case "nearest":
		return draw.NearestNeighbor, nil
	default:
		return nil, fmt.Errorf("unknown resample kernel %q", name)
	}
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)).(color.Gray))
		}
	}
	return dst
}
