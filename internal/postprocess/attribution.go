package postprocess

import (
	"fmt"
	"regexp"
	"strings"
)

// Attribution footers are appended programmatically, never generated by
// the model, so their counts are always honest. They are stripped before
// anything is persisted so stored facts never carry them.

var attributionRe = regexp.MustCompile(`(?m)^-# .*$`)

// AppendAttribution adds the fact/search-count footer. Zero counts append
// nothing. Applying it to text that already carries a footer replaces the
// footer rather than stacking a second one.
func AppendAttribution(text string, factsUsed, searchResultsUsed int) string {
	text = StripAttribution(text)
	if factsUsed <= 0 && searchResultsUsed <= 0 {
		return text
	}

	var parts []string
	if factsUsed > 0 {
		parts = append(parts, fmt.Sprintf("recalled %d %s", factsUsed, plural(factsUsed, "memory", "memories")))
	}
	if searchResultsUsed > 0 {
		parts = append(parts, fmt.Sprintf("%d search %s", searchResultsUsed, plural(searchResultsUsed, "result", "results")))
	}
	return text + "\n-# " + strings.Join(parts, " · ")
}

// StripAttribution removes footer lines. A no-op on text without one, and
// applying it twice equals applying it once.
func StripAttribution(text string) string {
	return strings.TrimRight(attributionRe.ReplaceAllString(text, ""), " \n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
