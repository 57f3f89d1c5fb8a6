// Package raster renders single PDF pages to RGBA images and keeps count of
// how many rendered images are still alive.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdfocr/internal/logging"
	"github.com/toricodesthings/pdfocr/internal/pdfdoc"
)

// ErrPageOutOfRange means the caller asked for a page the document does not
// have. It is a programming error, not a page failure.
var ErrPageOutOfRange = errors.New("page out of range")

// Source is anything that can render its pages; *pdfdoc.Document is one.
type Source interface {
	PageCount() int
	RenderPage(index int, dpi float64) (*image.RGBA, error)
}

// RenderError is a page-scoped render failure.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type Rasterizer struct {
	log logrus.FieldLogger

	live     atomic.Int64
	peak     atomic.Int64
	rendered atomic.Int64
	released atomic.Int64
}

func New(log logrus.FieldLogger) *Rasterizer {
	if log == nil {
		log = logging.Discard()
	}
	return &Rasterizer{log: log}
}

// Render rasterizes the 1-based page of src at dpi. The returned Image must be
// released by its consumer.
func (r *Rasterizer) Render(ctx context.Context, src Source, page int, dpi float64) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := src.PageCount(); page < 1 || page > n {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, n)
	}

	start := time.Now()
	pix, err := src.RenderPage(page-1, dpi)
	if err != nil {
		if errors.Is(err, pdfdoc.ErrClosed) {
			return nil, err
		}
		return nil, &RenderError{Page: page, Err: err}
	}
	if pix == nil || pix.Bounds().Empty() {
		return nil, &RenderError{Page: page, Err: errors.New("renderer returned an empty image")}
	}

	live := r.live.Add(1)
	for {
		p := r.peak.Load()
		if live <= p || r.peak.CompareAndSwap(p, live) {
			break
		}
	}
	r.rendered.Add(1)

	r.log.WithFields(logrus.Fields{
		"page":    page,
		"dpi":     dpi,
		"width":   pix.Bounds().Dx(),
		"height":  pix.Bounds().Dy(),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("page rendered")

	return &Image{Page: page, DPI: dpi, pix: pix, owner: r}, nil
}

// Live is the number of rendered images not yet released.
func (r *Rasterizer) Live() int64 { return r.live.Load() }

// Peak is the highest Live value seen.
func (r *Rasterizer) Peak() int64 { return r.peak.Load() }

// Rendered is the total number of images produced.
func (r *Rasterizer) Rendered() int64 { return r.rendered.Load() }

// Released is the total number of images released.
func (r *Rasterizer) Released() int64 { return r.released.Load() }
