package invoice

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeLine returns the form of a line used for keyword matching: upper case,
// diacritics removed, dots removed and whitespace collapsed. "I.G.V." becomes "IGV",
// "Emisión" becomes "EMISION". Amounts are always read from the original line.
func normalizeLine(line string) string {
	// A transform.Chain keeps state, so build one per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, line)
	if err != nil {
		out = line
	}
	out = strings.ToUpper(out)
	out = strings.ReplaceAll(out, ".", "")
	return strings.Join(strings.Fields(out), " ")
}

func normalizeLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = normalizeLine(line)
	}
	return out
}

// labelOffset returns the byte offset in line just past the first label found
// (case-insensitive), or 0 when none of the labels occur.
func labelOffset(line string, labels ...string) int {
	upper := strings.ToUpper(line)
	if len(upper) != len(line) {
		return 0
	}
	start, end := -1, 0
	for _, label := range labels {
		if idx := strings.Index(upper, label); idx >= 0 && (start < 0 || idx < start) {
			start, end = idx, idx+len(label)
		}
	}
	return end
}
