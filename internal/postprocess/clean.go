// Package postprocess cleans raw model output before it is sent: reasoning
// blocks, roleplay narration, speaker-prefix mimicry and repeated lines
// are stripped, output loops against the previous bot turn are detected
// and broken with one bounded regeneration, and deterministic attribution
// footers are appended (and stripped again before persistence). Every
// transform is idempotent.
package postprocess

import (
	"regexp"
	"strings"
)

var (
	thinkBlockRe  = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)
	thinkOrphanRe = regexp.MustCompile(`(?s)<think>.*`)

	// (pauses), (blinks slowly) style narration. Lowercase first letter
	// distinguishes actions from real parentheticals like (NASA).
	actionRe = regexp.MustCompile(`\([a-z][^)]*\)\s*`)

	italicRe   = regexp.MustCompile(`\*([^*]+)\*`)
	asteriskRe = regexp.MustCompile(`\*+`)

	spaceCommaRe  = regexp.MustCompile(`\s+,`)
	doubleSpaceRe = regexp.MustCompile(`  +`)
)

// StripReasoning removes <think>...</think> blocks, including an orphaned
// opening tag with no close (output truncated mid-reasoning): everything
// from the tag to end of text goes.
func StripReasoning(text string) string {
	if text == "" {
		return text
	}
	cleaned := thinkBlockRe.ReplaceAllString(text, "")
	cleaned = thinkOrphanRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// StripActions removes roleplay stage directions. Parenthesized actions
// are deleted; *emphasized* text keeps its content and loses only the
// marker characters.
func StripActions(text string) string {
	if text == "" {
		return text
	}
	cleaned := actionRe.ReplaceAllString(text, "")
	cleaned = italicRe.ReplaceAllString(cleaned, "$1")
	cleaned = asteriskRe.ReplaceAllString(cleaned, "")
	cleaned = doubleSpaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// StripSpeakerPrefix drops a leading "[Name]: " or "Name: " the model may
// mimic from the transcript format.
func StripSpeakerPrefix(text, botName string) string {
	if text == "" || botName == "" {
		return strings.TrimSpace(text)
	}
	re := regexp.MustCompile(`(?i)^(?:\[?` + regexp.QuoteMeta(botName) + `\]?:\s*)`)
	return strings.TrimSpace(re.ReplaceAllString(strings.TrimSpace(text), ""))
}

// CollapseRepeats removes duplicated lines, the signature of a generation
// loop stuck on its own citations. Comparison is case- and whitespace-
// insensitive; blank lines pass through.
func CollapseRepeats(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	seen := make(map[string]bool, len(lines))
	out := lines[:0]
	for _, line := range lines {
		normalized := strings.ToLower(strings.TrimSpace(line))
		if normalized != "" {
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// tidy fixes the punctuation damage stripping leaves behind.
func tidy(text string) string {
	text = spaceCommaRe.ReplaceAllString(text, ",")
	text = doubleSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Clean chains every transform in order. Safe to apply twice.
func Clean(text, botName string) string {
	cleaned := StripReasoning(text)
	cleaned = StripActions(cleaned)
	cleaned = CollapseRepeats(cleaned)
	cleaned = tidy(cleaned)
	cleaned = StripSpeakerPrefix(cleaned, botName)
	return cleaned
}
