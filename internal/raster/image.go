package raster

import (
	"image"
	"sync/atomic"
)

// Image is one rendered page. It is owned by exactly one consumer, which must
// call Release or Take once it is done with the pixels.
type Image struct {
	Page int
	DPI  float64

	pix      *image.RGBA
	owner    *Rasterizer
	released atomic.Bool
}

func (im *Image) Width() int {
	if im.pix == nil {
		return 0
	}
	return im.pix.Bounds().Dx()
}

func (im *Image) Height() int {
	if im.pix == nil {
		return 0
	}
	return im.pix.Bounds().Dy()
}

// Pixels returns the pixel buffer, or nil after release.
func (im *Image) Pixels() *image.RGBA {
	if im.released.Load() {
		return nil
	}
	return im.pix
}

// Release drops the pixel buffer. Only the first call has an effect.
func (im *Image) Release() {
	if !im.released.CompareAndSwap(false, true) {
		return
	}
	im.pix = nil
	if im.owner != nil {
		im.owner.live.Add(-1)
		im.owner.released.Add(1)
	}
}

// Take hands the pixel buffer to the caller and releases the image. It
// returns nil if the image was already released.
func (im *Image) Take() *image.RGBA {
	if im.released.Load() {
		return nil
	}
	pix := im.pix
	im.Release()
	return pix
}

func (im *Image) Released() bool { return im.released.Load() }
