package ocr

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	mdImage      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdHeading    = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	mdBold       = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	mdItalic     = regexp.MustCompile(`(^|[^\w*])\*(\S(?:[^*]*?\S)?)\*`)
	mdCode       = regexp.MustCompile("`([^`]*)`")
	mdQuote      = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	mdListMarker = regexp.MustCompile(`(?m)^([ \t]*)(?:[-*+]|\d{1,2}[.)])[ \t]+`)
	mdTableRule  = regexp.MustCompile(`(?m)^[ \t]*\|?[ \t]*:?-{3,}:?[ \t]*(\|[ \t]*:?-{3,}:?[ \t]*)*\|?[ \t]*$\n?`)
	mdRule       = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$`)
	htmlTag      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// StripMarkup reduces OCR markdown (and any inline HTML in it) to plain text
// with one paragraph per block.
func StripMarkup(md string) string {
	s := strings.ReplaceAll(md, "\r\n", "\n")
	if htmlTag.MatchString(s) {
		s = htmlToText(s)
	}

	s = mdImage.ReplaceAllString(s, "")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdTableRule.ReplaceAllString(s, "")
	s = mdRule.ReplaceAllString(s, "")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdQuote.ReplaceAllString(s, "")
	s = mdListMarker.ReplaceAllString(s, "$1")
	s = mdBold.ReplaceAllString(s, "$2")
	s = mdItalic.ReplaceAllString(s, "$1$2")
	s = mdCode.ReplaceAllString(s, "$1")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.Contains(line, "|") {
			cells := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
			for j := range cells {
				cells[j] = strings.TrimSpace(cells[j])
			}
			line = strings.Join(cells, "  ")
		}
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

func htmlToText(s string) string {
	node, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return htmlTag.ReplaceAllString(s, "")
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if tag == "script" || tag == "style" {
				return
			}
			if tag == "td" || tag == "th" {
				sb.WriteString("  ")
			}
			if blockTags[tag] {
				sb.WriteString("\n")
				defer sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}
