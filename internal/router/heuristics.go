package router

import (
	"strings"

	"github.com/revisionhiep-create/Project-Astral/internal/search"
)

// Keyword classes for routing without a model. Realtime subjects force a
// tight time range; time words mark the message as about the present.
var (
	realtimeDayWords = []string{
		"weather", "forecast", "temperature", "score", "scores",
		"news", "headline", "stock", "price of", "prices",
	}
	realtimeWeekWords = []string{
		"release", "released", "update", "announced", "announcement",
	}
	presentWords = []string{
		"now", "today", "tonight", "current", "currently", "latest",
		"recent", "recently", "this week", "happening",
	}
	greetingWords = []string{
		"hey", "hi", "hello", "yo", "sup", "what's up", "whats up",
		"good morning", "good night", "lol", "lmao",
	}
)

// HeuristicDecision routes a message by keywords alone. Used when no
// routing model is configured and as the degraded path when the model is
// unreachable. Deliberately conservative: without a clear realtime or
// factual signal it stays search-off.
func HeuristicDecision(message string) Decision {
	lower := strings.ToLower(strings.TrimSpace(message))

	d := Decision{
		TimeRange: search.TimeAll,
		Source:    SourceHeuristic,
	}

	if lower == "" || isGreeting(lower) {
		d.Reasoning = "casual or empty message"
		return d
	}

	if containsAny(lower, realtimeDayWords) {
		d.NeedsSearch = true
		d.TimeRange = search.TimeDay
		d.Query = message
		d.Reasoning = "realtime subject"
		return d
	}

	if containsAny(lower, realtimeWeekWords) {
		d.NeedsSearch = true
		d.TimeRange = search.TimeWeek
		d.Query = message
		d.Reasoning = "recent-events subject"
		return d
	}

	if containsAny(lower, presentWords) && isQuestion(lower) && !isPersonal(lower) {
		d.NeedsSearch = true
		d.TimeRange = search.TimeDay
		d.Query = message
		d.Reasoning = "question about the present"
		return d
	}

	// Factual question long enough to carry a real query.
	if isQuestion(lower) && len(message) > fallbackSearchMinChars && hasFactualShape(lower) {
		d.NeedsSearch = true
		d.Query = message
		d.Reasoning = "factual question"
		return d
	}

	d.Reasoning = "no search signal"
	return d
}

func isGreeting(lower string) bool {
	for _, g := range greetingWords {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+",") {
			return true
		}
	}
	return false
}

func isQuestion(lower string) bool {
	if strings.Contains(lower, "?") {
		return true
	}
	for _, w := range []string{"who ", "what ", "when ", "where ", "why ", "how ", "which ", "is ", "are ", "will ", "did ", "does "} {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}

// isPersonal catches opinion and small-talk questions: "what do you
// think" should not hit the web no matter what words surround it.
func isPersonal(lower string) bool {
	for _, w := range []string{"you think", "your opinion", "do you like", "how are you", "about me", "remember"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func hasFactualShape(lower string) bool {
	if isPersonal(lower) {
		return false
	}
	for _, w := range []string{"who is", "who was", "what is", "what are", "when did", "when was", "where is", "how old", "how many", "how much", "how tall"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
