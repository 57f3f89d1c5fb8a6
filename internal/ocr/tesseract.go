//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractAvailable reports whether tesseract support is compiled in.
const TesseractAvailable = true

type TesseractOptions struct {
	// PSM is the tesseract page segmentation mode; 0 keeps the library default.
	PSM int
	DPI float64
}

// TesseractEngine runs each page through a fresh gosseract client.
type TesseractEngine struct {
	opts          TesseractOptions
	clientFactory func() *gosseract.Client
}

func NewTesseract(opts TesseractOptions) *TesseractEngine {
	return &TesseractEngine{opts: opts, clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap(e.Name(), err)
	}

	data, err := EncodePNG(img)
	if err != nil {
		return "", wrap(e.Name(), err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(data); err != nil {
		return "", wrap(e.Name(), fmt.Errorf("set image: %w", err))
	}
	if langs := splitLanguages(lang); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return "", wrap(e.Name(), fmt.Errorf("set languages: %w", err))
		}
	}
	if e.opts.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.opts.PSM)); err != nil {
			return "", wrap(e.Name(), fmt.Errorf("set page seg mode: %w", err))
		}
	}
	if e.opts.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(int(e.opts.DPI))); err != nil {
			return "", wrap(e.Name(), fmt.Errorf("set dpi: %w", err))
		}
	}

	text, err := c.Text()
	if err != nil {
		return "", wrap(e.Name(), fmt.Errorf("recognize: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return "", wrap(e.Name(), err)
	}
	return strings.TrimSpace(text), nil
}

// splitLanguages accepts tesseract's "eng+deu" form.
func splitLanguages(lang string) []string {
	var out []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
