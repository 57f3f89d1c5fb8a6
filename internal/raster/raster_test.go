package raster

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/toricodesthings/pdfocr/internal/pdfdoc"
)

type fakeSource struct {
	pages   int
	failOn  map[int]error
	calls   []int
	lastDPI float64
}

func (f *fakeSource) PageCount() int { return f.pages }

func (f *fakeSource) RenderPage(index int, dpi float64) (*image.RGBA, error) {
	f.calls = append(f.calls, index)
	f.lastDPI = dpi
	if err := f.failOn[index+1]; err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, 10, 20)), nil
}

func TestRenderTracksLiveImages(t *testing.T) {
	t.Parallel()

	r := New(nil)
	src := &fakeSource{pages: 3}

	a, err := r.Render(context.Background(), src, 1, 150)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := r.Render(context.Background(), src, 2, 150)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Live() != 2 || r.Peak() != 2 {
		t.Fatalf("expected live=2 peak=2, got %d/%d", r.Live(), r.Peak())
	}
	if a.Width() != 10 || a.Height() != 20 || a.Page != 1 || a.DPI != 150 {
		t.Fatalf("unexpected image %+v", a)
	}

	a.Release()
	a.Release()
	if r.Live() != 1 || r.Released() != 1 {
		t.Fatalf("double release must count once: live=%d released=%d", r.Live(), r.Released())
	}
	if a.Pixels() != nil {
		t.Fatalf("released image must drop its pixels")
	}

	if pix := b.Take(); pix == nil {
		t.Fatalf("take should hand over the pixels")
	}
	if b.Take() != nil {
		t.Fatalf("second take must return nil")
	}
	if r.Live() != 0 || r.Peak() != 2 || r.Rendered() != 2 {
		t.Fatalf("unexpected counters live=%d peak=%d rendered=%d", r.Live(), r.Peak(), r.Rendered())
	}
	if src.calls[0] != 0 || src.calls[1] != 1 {
		t.Fatalf("expected 0-based indexes, got %v", src.calls)
	}
}

func TestRenderOutOfRange(t *testing.T) {
	t.Parallel()

	r := New(nil)
	src := &fakeSource{pages: 2}
	for _, p := range []int{0, 3, -1} {
		if _, err := r.Render(context.Background(), src, p, 300); !errors.Is(err, ErrPageOutOfRange) {
			t.Fatalf("page %d: expected ErrPageOutOfRange, got %v", p, err)
		}
	}
	if len(src.calls) != 0 {
		t.Fatalf("source must not be called for out of range pages")
	}
}

func TestRenderFailureIsPageScoped(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := New(nil)
	src := &fakeSource{pages: 4, failOn: map[int]error{4: boom}}

	_, err := r.Render(context.Background(), src, 4, 300)
	var re *RenderError
	if !errors.As(err, &re) || re.Page != 4 || !errors.Is(err, boom) {
		t.Fatalf("expected RenderError for page 4 wrapping boom, got %v", err)
	}
	if r.Live() != 0 {
		t.Fatalf("failed render must not count as live")
	}
}

func TestRenderClosedDocumentIsNotPageScoped(t *testing.T) {
	t.Parallel()

	r := New(nil)
	src := &fakeSource{pages: 1, failOn: map[int]error{1: pdfdoc.ErrClosed}}

	_, err := r.Render(context.Background(), src, 1, 300)
	var re *RenderError
	if errors.As(err, &re) || !errors.Is(err, pdfdoc.ErrClosed) {
		t.Fatalf("expected bare ErrClosed, got %v", err)
	}
}

func TestRenderHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Render(ctx, &fakeSource{pages: 1}, 1, 300)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
