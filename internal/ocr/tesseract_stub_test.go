//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/toricodesthings/pdfocr/internal/config"
)

func TestStubRecognizeReturnsNotEnabled(t *testing.T) {
	_, err := NewTesseract(TesseractOptions{}).Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)), "eng")
	var oe *Error
	if !errors.As(err, &oe) || oe.Engine != "tesseract" {
		t.Fatalf("expected *Error from tesseract, got %v", err)
	}
	if !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
}

func TestNewFallsBackToStubWithoutTag(t *testing.T) {
	log, hook := test.NewNullLogger()
	eng, err := New(config.Defaults(), log)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if eng.Name() != "tesseract" {
		t.Fatalf("expected tesseract stub, got %s", eng.Name())
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning about the missing engine")
	}

	_, err = eng.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)), "eng")
	var oe *Error
	if !errors.As(err, &oe) || !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected page-scoped *Error wrapping ErrNotEnabled, got %v", err)
	}
}
