package output

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/toricodesthings/pdfocr/internal/extract"
)

func sampleDoc(t *testing.T) *extract.Document {
	t.Helper()
	doc := extract.NewDocument(extract.Metadata{Title: "Report", Author: "Ops", PageCount: 3})
	pages := []extract.PageText{
		{PageNumber: 1, Text: "First page text.", Method: extract.MethodOCR, WordCount: 3},
		extract.FailedPage(2, extract.MethodOCR, errTest("render failed")),
		{PageNumber: 3, Text: "Third | page.", Method: extract.MethodTextLayer, WordCount: 3},
	}
	for _, p := range pages {
		if err := doc.Append(p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return doc
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestParseFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]Format{"": JSON, "json": JSON, " TEXT ": Text, "xlsx": XLSX}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Fatalf("expected error for csv")
	}
	if !XLSX.NeedsFile() || JSON.NeedsFile() {
		t.Fatalf("only xlsx needs a file")
	}
}

func TestWriteJSONShape(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, sampleDoc(t), JSON, ""); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got struct {
		Metadata map[string]any   `json:"metadata"`
		Pages    []map[string]any `json:"pages"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.Metadata["title"] != "Report" || got.Metadata["page_count"] != float64(3) || got.Metadata["encrypted"] != false {
		t.Fatalf("unexpected metadata %v", got.Metadata)
	}
	if len(got.Pages) != 3 || got.Pages[1]["error"] != true || got.Pages[1]["text"] != "" {
		t.Fatalf("unexpected pages %v", got.Pages)
	}
	if _, ok := got.Pages[0]["raw_text"]; ok {
		t.Fatalf("raw_text should be omitted when empty")
	}
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, sampleDoc(t), Text, "\n--\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "First page text.\n--\n\n--\nThird | page.\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestWriteRejectsXLSXStream(t *testing.T) {
	t.Parallel()

	if err := Write(&bytes.Buffer{}, sampleDoc(t), XLSX, ""); err == nil {
		t.Fatalf("expected error streaming xlsx")
	}
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := WriteXLSX(path, sampleDoc(t)); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(pagesSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 || strings.Join(rows[0], ",") != "page,method,words,error,text" {
		t.Fatalf("unexpected pages sheet %v", rows)
	}
	if rows[2][3] != "render failed" || rows[3][4] != "Third | page." {
		t.Fatalf("unexpected rows %v", rows)
	}

	meta, err := f.GetRows(metadataSheet)
	if err != nil {
		t.Fatalf("metadata rows: %v", err)
	}
	if meta[0][1] != "Report" || meta[5][1] != "3" || meta[6][1] != "false" {
		t.Fatalf("unexpected metadata sheet %v", meta)
	}
}

func TestBesidePath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/tmp/scan.pdf":    "/tmp/scan.json",
		"report.v2.PDF":    "report.v2.json",
		"dir/no-extension": "dir/no-extension.json",
	}
	for in, want := range cases {
		if got := BesidePath(in); got != want {
			t.Fatalf("BesidePath(%q) = %q want %q", in, got, want)
		}
	}
}

func TestTruncateCell(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxCellChars+10)
	if got := []rune(truncateCell(long)); len(got) != maxCellChars {
		t.Fatalf("expected %d runes, got %d", maxCellChars, len(got))
	}
}
