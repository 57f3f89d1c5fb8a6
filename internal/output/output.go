// Package output writes extraction results as JSON, plain text or an XLSX
// workbook.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/toricodesthings/pdfocr/internal/extract"
)

type Format string

const (
	JSON Format = "json"
	Text Format = "text"
	XLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSON, Text, XLSX:
		return f, nil
	case "":
		return JSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, text or xlsx)", s)
	}
}

// NeedsFile reports whether the format cannot go to a stream.
func (f Format) NeedsFile() bool { return f == XLSX }

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteText writes the cleaned text of every page, separated by sep. Failed
// pages contribute an empty string so positions stay stable.
func WriteText(w io.Writer, doc *extract.Document, sep string) error {
	parts := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		parts[i] = p.Text
	}
	_, err := io.WriteString(w, strings.Join(parts, sep)+"\n")
	return err
}

// Write renders doc to w in a stream format.
func Write(w io.Writer, doc *extract.Document, f Format, sep string) error {
	switch f {
	case JSON:
		return WriteJSON(w, doc)
	case Text:
		return WriteText(w, doc, sep)
	default:
		return fmt.Errorf("format %s must be written to a file", f)
	}
}

// BesidePath is where the JSON result for pdfPath goes when written next to
// the input: same directory and stem, .json extension.
func BesidePath(pdfPath string) string {
	ext := filepath.Ext(pdfPath)
	return strings.TrimSuffix(pdfPath, ext) + ".json"
}
