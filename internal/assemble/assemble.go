// Package assemble turns raw OCR output for one page into clean paragraphs.
package assemble

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Options struct {
	// Paragraphs shorter than this (in runes) are dropped. 0 keeps all.
	MinParagraphLength int
	// A paragraph shorter than this that does not end a sentence is merged
	// into the next one. 0 disables merging.
	MergeBelow        int
	FilterBoilerplate bool
}

func DefaultOptions() Options {
	return Options{MinParagraphLength: 20, MergeBelow: 50, FilterBoilerplate: true}
}

var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*•.*$`),
	regexp.MustCompile(`(?i)^\s*●.*$`),
	regexp.MustCompile(`(?i)^\s*\[[^\]]*\]\s*$`),
	regexp.MustCompile(`(?i)^\s*<[^>]*>\s*$`),
	regexp.MustCompile(`(?i)^\s*Page\s*\d+\s*$`),
	regexp.MustCompile(`(?i)^\s*\d+\s*$`),
	regexp.MustCompile(`(?i)^Figure\s*\d+[.:]?.*$`),
	regexp.MustCompile(`(?i)^\s*Table\s*\d+[.:]?.*$`),
	regexp.MustCompile(`(?i)^[.\s]+$`),
	// stray image file names
	regexp.MustCompile(`(?i)^[\w-]*(?:img|image|figure|fig|photo|pic)[\w-]*\.(?:jpeg|jpg|png|gif|webp|svg|bmp|tiff?)\s*$`),
	regexp.MustCompile(`(?i)^[\w-]+\.(?:jpeg|jpg|png|gif|webp|svg|bmp|tiff?)\s*$`),
}

// IsBoilerplate reports whether a single line is page furniture rather than
// content.
func IsBoilerplate(line string) bool {
	for _, re := range boilerplate {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Assemble cleans raw page text and returns its paragraphs separated by a
// blank line. It is deterministic and Assemble(Assemble(x)) == Assemble(x).
func Assemble(raw string, opts Options) string {
	paras := splitParagraphs(clean(raw))

	var joined []string
	for _, lines := range paras {
		var kept []string
		for _, line := range lines {
			line = collapse(line)
			if line == "" || (opts.FilterBoilerplate && IsBoilerplate(line)) {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) > 0 {
			joined = append(joined, joinLines(kept))
		}
	}

	// Filtering, dropping and merging can expose new candidates, so repeat
	// until nothing changes.
	for {
		next := mergeShort(dropShort(filterParagraphs(joined, opts), opts.MinParagraphLength), opts)
		if slices.Equal(next, joined) {
			break
		}
		joined = next
	}
	return strings.Join(joined, "\n\n")
}

func clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n\n")

	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF', '\u00AD':
			return -1
		case '\u00A0', '\u202F', '\u2007':
			return ' '
		default:
			return r
		}
	}, text)
}

// splitParagraphs breaks on blank lines and on a line indented deeper than
// the one before it.
func splitParagraphs(text string) [][]string {
	var out [][]string
	var cur []string
	prevIndent := -1

	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
		}
		cur = nil
		prevIndent = -1
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		indent := indentWidth(line)
		if prevIndent >= 0 && indent > prevIndent {
			flush()
		}
		cur = append(cur, line)
		prevIndent = indent
	}
	flush()
	return out
}

func indentWidth(line string) int {
	n := 0
	for _, r := range line {
		switch {
		case r == '\t':
			n += 4
		case unicode.IsSpace(r):
			n++
		default:
			return n
		}
	}
	return n
}

func collapse(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// joinLines joins with a space, re-joining a word hyphenated across a line
// break when the continuation starts lower-case.
func joinLines(lines []string) string {
	var sb strings.Builder
	for i, line := range lines {
		if i == 0 {
			sb.WriteString(line)
			continue
		}
		prev := sb.String()
		if hyphenated(prev) && startsLower(line) {
			sb.Reset()
			sb.WriteString(prev[:len(prev)-1])
			sb.WriteString(line)
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(line)
	}
	return sb.String()
}

func hyphenated(s string) bool {
	if !strings.HasSuffix(s, "-") {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:len(s)-1])
	return unicode.IsLetter(r)
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}

func filterParagraphs(paras []string, opts Options) []string {
	if !opts.FilterBoilerplate {
		return paras
	}
	out := paras[:0:0]
	for _, p := range paras {
		if !IsBoilerplate(p) {
			out = append(out, p)
		}
	}
	return out
}

func dropShort(paras []string, minLen int) []string {
	out := paras[:0:0]
	for _, p := range paras {
		if utf8.RuneCountInString(p) >= minLen {
			out = append(out, p)
		}
	}
	return out
}

func mergeShort(paras []string, opts Options) []string {
	if opts.MergeBelow <= 0 || len(paras) < 2 {
		return paras
	}
	var out []string
	cur := ""
	for _, p := range paras {
		switch {
		case cur == "":
			cur = p
		case utf8.RuneCountInString(cur) < opts.MergeBelow && !endsSentence(cur):
			cur += " " + p
		default:
			out = append(out, cur)
			cur = p
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "!")
}
