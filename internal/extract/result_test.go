package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestAppendEnforcesAscendingOrder(t *testing.T) {
	t.Parallel()

	doc := NewDocument(Metadata{PageCount: 5})
	for _, n := range []int{1, 2, 4} {
		if err := doc.Append(PageText{PageNumber: n}); err != nil {
			t.Fatalf("append page %d: %v", n, err)
		}
	}

	for _, n := range []int{4, 3, 0} {
		err := doc.Append(PageText{PageNumber: n})
		if !errors.Is(err, ErrOutOfOrder) {
			t.Fatalf("page %d: expected ErrOutOfOrder, got %v", n, err)
		}
	}
	if len(doc.Pages) != 3 {
		t.Fatalf("rejected pages must not be stored, got %d pages", len(doc.Pages))
	}
}

func TestFailedPagesAndCounts(t *testing.T) {
	t.Parallel()

	doc := NewDocument(Metadata{})
	_ = doc.Append(PageText{PageNumber: 1, Text: "one two three"})
	_ = doc.Append(FailedPage(2, MethodOCR, errors.New("boom")))
	_ = doc.Append(PageText{PageNumber: 3, Text: "four"})

	failed := doc.FailedPages()
	if len(failed) != 1 || failed[0] != 2 {
		t.Fatalf("unexpected failed pages: %v", failed)
	}
	words, _ := doc.Counts()
	if words != 4 {
		t.Fatalf("expected 4 words, got %d", words)
	}
	if doc.Pages[1].Text != "" || doc.Pages[1].ErrorMessage != "boom" {
		t.Fatalf("unexpected failed page: %+v", doc.Pages[1])
	}
}

func TestDocumentJSONShape(t *testing.T) {
	t.Parallel()

	doc := NewDocument(Metadata{Title: "T", PageCount: 1})
	_ = doc.Append(PageText{PageNumber: 1, Text: "hi", Method: MethodOCR, WordCount: 1})

	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"metadata":{"title":"T"`, `"page_count":1`, `"encrypted":false`, `"page_number":1`, `"error":false`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, "raw_text") {
		t.Fatalf("raw_text should be omitted when empty: %s", s)
	}
}

func TestBuildCounts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in           string
		words, chars int
	}{
		{"", 0, 0},
		{"hello", 1, 5},
		{"  a \n b\tc  ", 3, 11},
		{"héllo wörld", 2, 11},
	}
	for _, tc := range cases {
		w, c := BuildCounts(tc.in)
		if w != tc.words || c != tc.chars {
			t.Fatalf("BuildCounts(%q) = %d,%d want %d,%d", tc.in, w, c, tc.words, tc.chars)
		}
	}
}
