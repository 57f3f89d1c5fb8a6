// Package batch splits a page range into bounded, ordered batches.
package batch

import (
	"fmt"
	"iter"
)

// Batch is the half-open range [Start, End) of 1-based page numbers.
type Batch struct {
	Start int
	End   int
}

func (b Batch) Len() int { return b.End - b.Start }

// Pages yields every page number in the batch in ascending order.
func (b Batch) Pages() iter.Seq[int] {
	return func(yield func(int) bool) {
		for p := b.Start; p < b.End; p++ {
			if !yield(p) {
				return
			}
		}
	}
}

func (b Batch) String() string {
	if b.Len() == 1 {
		return fmt.Sprintf("%d", b.Start)
	}
	return fmt.Sprintf("%d-%d", b.Start, b.End-1)
}

// Split yields consecutive batches of at most size pages covering the
// inclusive range [first, last]. The sequence is lazy and can be ranged over
// more than once. size must be positive.
func Split(first, last, size int) iter.Seq[Batch] {
	if size <= 0 {
		panic(fmt.Sprintf("batch: size must be positive, got %d", size))
	}
	return func(yield func(Batch) bool) {
		for start := first; start <= last; start += size {
			end := min(start+size, last+1)
			if !yield(Batch{Start: start, End: end}) {
				return
			}
		}
	}
}

// All is Split over every page of a document with total pages.
func All(total, size int) iter.Seq[Batch] {
	return Split(1, total, size)
}

// Count returns how many batches Split(first, last, size) yields.
func Count(first, last, size int) int {
	if last < first || size <= 0 {
		return 0
	}
	return (last - first + size) / size
}
