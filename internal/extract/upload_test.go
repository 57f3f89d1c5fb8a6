package extract

import (
	"errors"
	"os"
	"strings"
	"testing"
)

const tinyPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func TestSaveBodyToTempSniffsPDF(t *testing.T) {
	t.Parallel()

	up, err := SaveBodyToTemp(strings.NewReader(tinyPDF), "../../etc/report.pdf", 1<<20)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	defer up.Cleanup()

	if !up.IsPDF() {
		t.Fatalf("expected application/pdf, got %q", up.MIMEType)
	}
	if !strings.HasPrefix(up.Path, up.TempDir) {
		t.Fatalf("path %q escaped temp dir %q", up.Path, up.TempDir)
	}
	if up.Size != int64(len(tinyPDF)) {
		t.Fatalf("unexpected size %d", up.Size)
	}
}

func TestSaveBodyToTempEnforcesLimit(t *testing.T) {
	t.Parallel()

	_, err := SaveBodyToTemp(strings.NewReader(strings.Repeat("x", 64)), "big.pdf", 16)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestCleanupRemovesTempDir(t *testing.T) {
	t.Parallel()

	up, err := SaveBodyToTemp(strings.NewReader("plain words"), "", 1<<20)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if up.IsPDF() {
		t.Fatalf("plain text sniffed as pdf")
	}
	up.Cleanup()
	if _, err := os.Stat(up.TempDir); !os.IsNotExist(err) {
		t.Fatalf("expected temp dir removed, stat err=%v", err)
	}
}
