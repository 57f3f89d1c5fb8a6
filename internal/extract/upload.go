package extract

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const MIMEPDF = "application/pdf"

// ErrTooLarge is returned when an upload exceeds the byte cap.
var ErrTooLarge = errors.New("upload too large")

type Upload struct {
	TempDir  string
	Path     string
	MIMEType string
	Size     int64
}

func (u Upload) Cleanup() {
	if u.TempDir != "" {
		_ = os.RemoveAll(u.TempDir)
	}
}

// IsPDF reports whether the sniffed content type is a PDF.
func (u Upload) IsPDF() bool {
	return u.MIMEType == MIMEPDF
}

// SaveBodyToTemp writes body (e.g. http.Request.Body) to a private temp file,
// capped at maxBytes, and sniffs its MIME type.
func SaveBodyToTemp(body io.Reader, fileName string, maxBytes int64) (Upload, error) {
	tmpDir, err := os.MkdirTemp("", "pdfocr-*")
	if err != nil {
		return Upload{}, fmt.Errorf("temp dir: %w", err)
	}

	safeName := strings.TrimSpace(fileName)
	if safeName == "" {
		safeName = "input.pdf"
	}
	outPath := filepath.Join(tmpDir, filepath.Base(safeName))

	f, err := os.Create(outPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return Upload{}, fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	lr := &io.LimitedReader{R: body, N: maxBytes + 1}
	n, err := io.Copy(f, lr)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return Upload{}, fmt.Errorf("write: %w", err)
	}
	if n > maxBytes {
		_ = os.RemoveAll(tmpDir)
		return Upload{}, fmt.Errorf("%w: exceeds %dMB limit", ErrTooLarge, maxBytes/(1<<20))
	}

	if err := f.Sync(); err != nil {
		_ = os.RemoveAll(tmpDir)
		return Upload{}, fmt.Errorf("sync: %w", err)
	}

	return Upload{
		TempDir:  tmpDir,
		Path:     outPath,
		MIMEType: SniffMIMEType(outPath),
		Size:     n,
	}, nil
}

// SniffMIMEType returns the lower-cased content type of the file at path, or
// "" if it cannot be read.
func SniffMIMEType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err == nil && m != nil {
		return strings.ToLower(strings.TrimSpace(m.String()))
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n <= 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(http.DetectContentType(buf[:n])))
}

// SniffBytes is SniffMIMEType for content already in memory.
func SniffBytes(b []byte) string {
	return strings.ToLower(strings.TrimSpace(mimetype.Detect(b).String()))
}
