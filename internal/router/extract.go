package router

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// rawDecision is the JSON shape the routing model is asked for. A null
// time_range decodes as the empty string.
type rawDecision struct {
	Search      bool   `json:"search"`
	SearchQuery string `json:"search_query"`
	TimeRange   string `json:"time_range"`
	Reasoning   string `json:"reasoning"`
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	searchJSONRe = regexp.MustCompile(`(?s)\{[^{}]*"search"[^{}]*\}`)
	anyBraceRe   = regexp.MustCompile(`(?s)\{.*?\}`)
)

// extractJSON recovers a decision object from model output that may wrap
// the JSON in markdown fences or prose. Four attempts, strictest first:
// direct parse, fenced code block, a brace group containing "search", any
// brace group.
func extractJSON(text string) (rawDecision, error) {
	var d rawDecision

	text = strings.TrimSpace(text)
	if text == "" {
		return d, fmt.Errorf("empty routing output")
	}

	if err := json.Unmarshal([]byte(text), &d); err == nil {
		return d, nil
	}

	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &d); err == nil {
			return d, nil
		}
	}

	if m := searchJSONRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &d); err == nil {
			return d, nil
		}
	}

	if m := anyBraceRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &d); err == nil {
			return d, nil
		}
	}

	return d, fmt.Errorf("no JSON object in routing output: %s", truncate(text, 100))
}
