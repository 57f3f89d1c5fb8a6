// Package pdftest builds small, valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Build returns a US Letter PDF with one page per entry in pages, each page
// showing its string in Helvetica. title goes into the Info dictionary.
func Build(title string, pages ...string) []byte {
	return build(title, false, pages)
}

// BuildWithImage is Build with a small uncompressed RGB image XObject drawn
// on the first page.
func BuildWithImage(title string, pages ...string) []byte {
	return build(title, true, pages)
}

func build(title string, withImage bool, pages []string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	obj(fmt.Sprintf("<< /Title (%s) /Producer (pdftest) >>", escape(title)))

	imageObj := 5 + 2*len(pages)
	for i, text := range pages {
		resources := "/Font << /F1 3 0 R >>"
		stream := fmt.Sprintf("BT /F1 18 Tf 72 700 Td (%s) Tj ET", escape(text))
		if withImage && i == 0 {
			resources += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", imageObj)
			stream += " q 100 0 0 100 72 500 cm /Im1 Do Q"
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R >>", resources, 6+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	if withImage && len(pages) > 0 {
		// 2x2 pixels: red, green, blue, white.
		pix := []byte{0xff, 0, 0, 0, 0xff, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
		obj(fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length %d >>\nstream\n%s\nendstream", len(pix), pix))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Write stores Build's output under t.TempDir and returns the path.
func Write(t testing.TB, name, title string, pages ...string) string {
	t.Helper()
	return WriteBytes(t, name, Build(title, pages...))
}

// WriteBytes stores data under t.TempDir and returns the path.
func WriteBytes(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write test pdf: %v", err)
	}
	return path
}

// Pages returns n page strings "page 1 ..." to "page n ...".
func Pages(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("This is page %d of the generated test document.", i+1)
	}
	return out
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
