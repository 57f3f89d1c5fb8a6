//go:build ocr

package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"slices"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestTesseractRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("Hello PDF")

	text, err := NewTesseract(TesseractOptions{PSM: 7, DPI: 300}).Recognize(context.Background(), img, "eng")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	got := strings.ToLower(text)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "pdf") {
		t.Fatalf("unexpected OCR output: %q", text)
	}
}

func TestSplitLanguages(t *testing.T) {
	got := splitLanguages(" eng+deu + ")
	if !slices.Equal(got, []string{"eng", "deu"}) {
		t.Fatalf("unexpected languages %v", got)
	}
}
