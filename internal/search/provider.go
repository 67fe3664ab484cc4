// Package search provides web search used to ground replies about current
// events. Providers return results in their native ranking; callers must
// not re-sort by snippet length (longer low-quality snippets previously
// out-ranked accurate short ones).
package search

import (
	"context"
	"fmt"
	"strings"
)

// TimeRange restricts results by recency. The zero value means all-time.
type TimeRange string

const (
	TimeAll   TimeRange = ""
	TimeDay   TimeRange = "day"
	TimeWeek  TimeRange = "week"
	TimeMonth TimeRange = "month"
	TimeYear  TimeRange = "year"
)

// ParseTimeRange maps a routing-decision string to a TimeRange. Unknown
// values (including "null") collapse to all-time.
func ParseTimeRange(s string) TimeRange {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return TimeDay
	case "week":
		return TimeWeek
	case "month":
		return TimeMonth
	case "year":
		return TimeYear
	default:
		return TimeAll
	}
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"content"`
}

// Provider is a web search backend.
type Provider interface {
	// Search returns up to max results for the query, in the provider's
	// native ranking order.
	Search(ctx context.Context, query string, timeRange TimeRange) ([]Result, error)
	Name() string
}

// FormatResults renders results as a bulleted block for injection into a
// system prompt. Empty input yields an empty string.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, r := range results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.URL
		}
		fmt.Fprintf(&sb, "- %s: %s\n", r.Title, snippet)
	}
	return strings.TrimRight(sb.String(), "\n")
}
