package assemble

import (
	"strings"
	"testing"
)

func TestAssembleParagraphsAndHyphenation(t *testing.T) {
	t.Parallel()

	raw := "The quick brown fox jumps over the lazy dog and keeps run-\nning through the field.\n\n\n" +
		"A second paragraph that is long enough to survive the filters.\r\n"
	got := Assemble(raw, DefaultOptions())
	want := "The quick brown fox jumps over the lazy dog and keeps running through the field.\n\n" +
		"A second paragraph that is long enough to survive the filters."
	if got != want {
		t.Fatalf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestAssembleKeepsHyphenBeforeCapital(t *testing.T) {
	t.Parallel()

	got := Assemble("This sentence talks about the Franco-\nPrussian war in some detail.", DefaultOptions())
	if !strings.Contains(got, "Franco- Prussian") {
		t.Fatalf("expected hyphen kept before capital, got %q", got)
	}
}

func TestAssembleFiltersBoilerplate(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"Page 12",
		"",
		"Figure 3: A chart nobody reads in plain text.",
		"",
		"42",
		"",
		"• a bullet that the original tool also dropped entirely",
		"",
		"[continued on the next page of this report]",
		"",
		"figure_03.png",
		"",
		".......................",
		"",
		"Real content survives the boilerplate filter.",
	}, "\n")

	got := Assemble(raw, DefaultOptions())
	if got != "Real content survives the boilerplate filter." {
		t.Fatalf("unexpected output %q", got)
	}

	opts := DefaultOptions()
	opts.FilterBoilerplate = false
	if !strings.Contains(Assemble(raw, opts), "Figure 3") {
		t.Fatalf("expected figure caption when filtering is off")
	}
}

func TestAssembleMergesShortParagraphs(t *testing.T) {
	t.Parallel()

	raw := "Introduction to the topic\n\nThe body of the section starts here and ends with a full stop.\n\nAnother complete sentence that is not merged."
	got := Assemble(raw, DefaultOptions())
	want := "Introduction to the topic The body of the section starts here and ends with a full stop.\n\n" +
		"Another complete sentence that is not merged."
	if got != want {
		t.Fatalf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestAssembleDropsShortParagraphs(t *testing.T) {
	t.Parallel()

	got := Assemble("tiny\n\nThis paragraph is comfortably above the minimum length.", DefaultOptions())
	if got != "This paragraph is comfortably above the minimum length." {
		t.Fatalf("unexpected output %q", got)
	}

	opts := Options{}
	if got := Assemble("tiny\n\nx", opts); got != "tiny\n\nx" {
		t.Fatalf("zero options should keep everything, got %q", got)
	}
}

func TestAssembleIndentStartsParagraph(t *testing.T) {
	t.Parallel()

	raw := "The first paragraph has a line here.\n    An indented line begins the next paragraph."
	got := Assemble(raw, Options{})
	want := "The first paragraph has a line here.\n\nAn indented line begins the next paragraph."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestAssembleStripsInvisibleCharacters(t *testing.T) {
	t.Parallel()

	raw := "Zero\u200Bwidth and\u00A0non breaking   spaces are normal\u00ADised here."
	got := Assemble(raw, DefaultOptions())
	if got != "Zerowidth and non breaking spaces are normalised here." {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   \n\n\t",
		"Page 1\n\nShort head\n\nA real paragraph with some words, long enough to stay.\n\n3",
		"[this bracket opens on one line and keeps going\nuntil the closing bracket]",
		"Hyphen-\nated words and\n  indented text\n\nFigure\n2 shows a thing that is long enough",
		"one\ntwo\nthree\n\nfour five six seven eight nine ten eleven\n\ntwelve",
		"Ends with a question?\n\nshort\n\nAnother paragraph that closes!",
		"• bullet\nline after bullet that is long enough to be kept around",
		"Table 4. Results\nwith a long explanation following the table caption text",
	}
	for _, opts := range []Options{DefaultOptions(), {}, {MinParagraphLength: 5, MergeBelow: 80}} {
		for _, in := range inputs {
			once := Assemble(in, opts)
			twice := Assemble(once, opts)
			if once != twice {
				t.Fatalf("not idempotent for %q with %+v:\nonce:  %q\ntwice: %q", in, opts, once, twice)
			}
		}
	}
}

func TestIsBoilerplate(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"Page 7", "  12 ", "<footer>", "TABLE 2: numbers", "● dot", "...", "scan.jpg"} {
		if !IsBoilerplate(line) {
			t.Fatalf("expected %q to be boilerplate", line)
		}
	}
	for _, line := range []string{"Pages of history", "The table below", "12 apples"} {
		if IsBoilerplate(line) {
			t.Fatalf("did not expect %q to be boilerplate", line)
		}
	}
}
