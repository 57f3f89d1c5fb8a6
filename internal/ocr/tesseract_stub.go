//go:build !ocr

package ocr

import (
	"context"
	"image"
)

// TesseractAvailable reports whether tesseract support is compiled in.
// Rebuild with -tags ocr (and tesseract installed) to enable it.
const TesseractAvailable = false

type TesseractOptions struct {
	PSM int
	DPI float64
}

// TesseractEngine is the stand-in used when tesseract is not compiled in.
type TesseractEngine struct{}

func NewTesseract(TesseractOptions) *TesseractEngine { return &TesseractEngine{} }

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(context.Context, image.Image, string) (string, error) {
	return "", &Error{Engine: e.Name(), Err: ErrNotEnabled}
}
