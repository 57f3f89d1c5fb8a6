package output

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/toricodesthings/pdfocr/internal/extract"
)

const (
	pagesSheet    = "Pages"
	metadataSheet = "Metadata"
	// Excel refuses cells longer than this.
	maxCellChars = 32767
)

// WriteXLSX saves doc as a workbook with a Pages sheet and a Metadata sheet.
func WriteXLSX(path string, doc *extract.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", pagesSheet); err != nil {
		return err
	}
	header := []any{"page", "method", "words", "error", "text"}
	if err := f.SetSheetRow(pagesSheet, "A1", &header); err != nil {
		return err
	}
	for i, p := range doc.Pages {
		errCell := ""
		if p.Error {
			errCell = p.ErrorMessage
			if errCell == "" {
				errCell = "error"
			}
		}
		row := []any{p.PageNumber, p.Method, p.WordCount, errCell, truncateCell(p.Text)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(pagesSheet, cell, &row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(pagesSheet, "E", "E", 100)

	if _, err := f.NewSheet(metadataSheet); err != nil {
		return err
	}
	m := doc.Metadata
	meta := [][]any{
		{"title", m.Title},
		{"author", m.Author},
		{"subject", m.Subject},
		{"creator", m.Creator},
		{"producer", m.Producer},
		{"page_count", m.PageCount},
		{"encrypted", strconv.FormatBool(m.Encrypted)},
	}
	for i, row := range meta {
		if err := f.SetSheetRow(metadataSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func truncateCell(s string) string {
	r := []rune(s)
	if len(r) <= maxCellChars {
		return s
	}
	return string(r[:maxCellChars])
}
