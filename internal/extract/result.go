package extract

import (
	"errors"
	"fmt"
)

const (
	MethodOCR       = "ocr"
	MethodTextLayer = "text-layer"
)

// ErrOutOfOrder is returned by Document.Append when a page number does not
// strictly follow the last appended one.
var ErrOutOfOrder = errors.New("page appended out of order")

type Metadata struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Subject   string `json:"subject,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Producer  string `json:"producer,omitempty"`
	PageCount int    `json:"page_count"`
	Encrypted bool   `json:"encrypted"`
}

type PageText struct {
	PageNumber   int    `json:"page_number"`
	Text         string `json:"text"`
	RawText      string `json:"raw_text,omitempty"`
	Method       string `json:"method"`
	WordCount    int    `json:"word_count"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Document is the final result of one extraction call. Pages are kept in
// strictly ascending page order.
type Document struct {
	Metadata Metadata   `json:"metadata"`
	Pages    []PageText `json:"pages"`
}

func NewDocument(meta Metadata) *Document {
	return &Document{Metadata: meta, Pages: []PageText{}}
}

func (d *Document) Append(p PageText) error {
	if n := len(d.Pages); n > 0 && p.PageNumber <= d.Pages[n-1].PageNumber {
		return fmt.Errorf("%w: page %d after page %d", ErrOutOfOrder, p.PageNumber, d.Pages[n-1].PageNumber)
	}
	if p.PageNumber < 1 {
		return fmt.Errorf("%w: page %d", ErrOutOfOrder, p.PageNumber)
	}
	d.Pages = append(d.Pages, p)
	return nil
}

// FailedPages lists the page numbers whose extraction failed.
func (d *Document) FailedPages() []int {
	var out []int
	for _, p := range d.Pages {
		if p.Error {
			out = append(out, p.PageNumber)
		}
	}
	return out
}

// Counts sums words and characters over all successful pages.
func (d *Document) Counts() (wordCount int, charCount int) {
	for _, p := range d.Pages {
		w, c := BuildCounts(p.Text)
		wordCount += w
		charCount += c
	}
	return
}

// FailedPage builds the placeholder entry recorded for a page-scoped failure.
func FailedPage(page int, method string, err error) PageText {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return PageText{
		PageNumber:   page,
		Method:       method,
		Error:        true,
		ErrorMessage: msg,
	}
}

func BuildCounts(text string) (wordCount int, charCount int) {
	charCount = len([]rune(text))
	wordCount = 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if inWord {
				wordCount++
				inWord = false
			}
			continue
		}
		inWord = true
	}
	if inWord {
		wordCount++
	}
	return
}
