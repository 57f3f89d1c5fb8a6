package batch

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive, 1-based page range.
type Range struct {
	First int
	Last  int
}

// RangeError reports a malformed page range or one that does not fit the
// document.
type RangeError struct {
	Input  string
	Reason string
}

func (e *RangeError) Error() string {
	if e.Input == "" {
		return "invalid page range: " + e.Reason
	}
	return fmt.Sprintf("invalid page range %q: %s", e.Input, e.Reason)
}

// ParseRange accepts "N" or "N-M" with 1 <= N <= M.
func ParseRange(s string) (Range, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return Range{}, &RangeError{Input: s, Reason: "empty"}
	}

	lo, hi, isSpan := strings.Cut(in, "-")
	first, err := parsePage(lo)
	if err != nil {
		return Range{}, &RangeError{Input: s, Reason: err.Error()}
	}
	last := first
	if isSpan {
		last, err = parsePage(hi)
		if err != nil {
			return Range{}, &RangeError{Input: s, Reason: err.Error()}
		}
	}
	if first > last {
		return Range{}, &RangeError{Input: s, Reason: fmt.Sprintf("start %d is after end %d", first, last)}
	}
	return Range{First: first, Last: last}, nil
}

func parsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a page number", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("page numbers start at 1, got %d", n)
	}
	return n, nil
}

// Check verifies the range lies within a document of pageCount pages.
func (r Range) Check(pageCount int) error {
	if r.First < 1 || r.Last < r.First {
		return &RangeError{Input: r.String(), Reason: "range is empty"}
	}
	if r.Last > pageCount {
		return &RangeError{Input: r.String(), Reason: fmt.Sprintf("document has %d pages", pageCount)}
	}
	return nil
}

func (r Range) Len() int { return r.Last - r.First + 1 }

func (r Range) String() string {
	if r.First == r.Last {
		return strconv.Itoa(r.First)
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// Full is the range covering every page of a document.
func Full(pageCount int) Range {
	return Range{First: 1, Last: pageCount}
}
