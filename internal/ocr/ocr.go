// Package ocr turns page images into text. Engines are stateless per call
// and safe for concurrent use.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdfocr/internal/config"
	"github.com/toricodesthings/pdfocr/internal/logging"
)

type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// Error is a page-scoped OCR failure.
type Error struct {
	Engine string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ocr (%s): %v", e.Engine, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotEnabled is the page error reported by the tesseract engine when the
// binary was built without the "ocr" tag.
var ErrNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

// Func adapts a plain function to Engine. Errors are wrapped in *Error.
type Func func(ctx context.Context, img image.Image, lang string) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	text, err := f(ctx, img, lang)
	if err != nil {
		return "", wrap("func", err)
	}
	return text, nil
}

// New builds the engine named by cfg.OCREngine.
func New(cfg config.Config, log logrus.FieldLogger) (Engine, error) {
	if log == nil {
		log = logging.Discard()
	}
	switch cfg.OCREngine {
	case "", "tesseract":
		if !TesseractAvailable {
			// Every page will fail with ErrNotEnabled; the run still
			// completes with per-page errors.
			log.WithField("engine", "tesseract").Warn(ErrNotEnabled.Error())
		}
		return NewTesseract(TesseractOptions{PSM: cfg.TesseractPSM, DPI: cfg.DPI}), nil
	case "mistral":
		return NewMistral(MistralOptions{
			APIKey:        cfg.MistralAPIKey,
			URL:           cfg.MistralAPIURL,
			Model:         cfg.MistralModel,
			Retries:       cfg.MistralRetries,
			Timeout:       cfg.OCRTimeout,
			MaxConcurrent: cfg.MaxOCRConcurrent,
			RateEvery:     cfg.OCRRateEvery,
			RateBurst:     cfg.OCRRateBurst,
			Log:           log,
		})
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.OCREngine)
	}
}

func wrap(engine string, err error) error {
	var oe *Error
	if errors.As(err, &oe) {
		return err
	}
	return &Error{Engine: engine, Err: err}
}

// EncodePNG encodes img losslessly for engines that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
