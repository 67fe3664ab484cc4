// Package assemble builds the two prompt blocks for generation: a system
// block carrying personality plus grounding context, and a user block
// carrying the conversation transcript. The two are never merged; search
// results sit at the top of the system block and identity is restated at
// the transcript midpoint to counter mid-context attention loss.
package assemble

import (
	"fmt"
	"strings"
	"time"
)

// Message is one transcript entry.
type Message struct {
	Speaker string
	FromBot bool
	Content string
}

// Assembler builds prompt blocks for one bot identity.
type Assembler struct {
	botName string
	// identityEvery inserts the transcript reminder once the included
	// history reaches this many messages.
	identityEvery int
	// recentKeep messages at the tail are never truncated by the budget.
	recentKeep int
	// budgetChars caps the transcript size. Zero disables the budget.
	budgetChars int

	// now is replaceable for tests.
	now func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithBudget caps the transcript at n characters.
func WithBudget(n int) Option { return func(a *Assembler) { a.budgetChars = n } }

// WithIdentityEvery sets the history length at which the mid-transcript
// reminder appears.
func WithIdentityEvery(n int) Option { return func(a *Assembler) { a.identityEvery = n } }

// WithRecentKeep sets how many trailing messages survive any truncation.
func WithRecentKeep(n int) Option { return func(a *Assembler) { a.recentKeep = n } }

func withClock(now func() time.Time) Option { return func(a *Assembler) { a.now = now } }

// New builds an Assembler for the named bot.
func New(botName string, opts ...Option) *Assembler {
	a := &Assembler{
		botName:       botName,
		identityEvery: 8,
		recentKeep:    6,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DateContext is the first line of every system block.
func (a *Assembler) DateContext() string {
	return fmt.Sprintf("Today is %s.", a.now().Format("Monday, January 2, 2006"))
}

// SystemBlock composes the system message: date, personality, search
// results (flagged as the primary source), memory facts, and the current
// speaker. Critical rules are restated at the very end so they benefit
// from recency as well as the personality's primacy.
func (a *Assembler) SystemBlock(personality, searchBlock, memoryBlock, speaker string) string {
	var sb strings.Builder

	sb.WriteString(a.DateContext())
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(personality))

	if searchBlock != "" {
		sb.WriteString("\n\nSearch results (use these as your primary source):\n")
		sb.WriteString(strings.TrimSpace(searchBlock))
	}
	if memoryBlock != "" {
		sb.WriteString("\n\nThings you remember (background, lower priority than search):\n")
		sb.WriteString(strings.TrimSpace(memoryBlock))
	}
	if speaker != "" {
		fmt.Fprintf(&sb, "\n\nCurrent speaker: %s", speaker)
	}

	sb.WriteString("\n\n---\nRULES\n")
	fmt.Fprintf(&sb, "Stay in character as %s. Reply only to the last message.\n", a.botName)
	sb.WriteString("Never fabricate facts or invent user statements. Fresh angle every reply.")

	return sb.String()
}

// UserBlock renders the transcript plus the current message. History is
// oldest first. The bot's own prior turns must already be stripped of
// attribution footers by the caller (see postprocess.StripAttribution).
func (a *Assembler) UserBlock(history []Message, current Message) string {
	lines := make([]string, 0, len(history)+2)
	for _, m := range history {
		lines = append(lines, a.formatLine(m))
	}

	reminder := -1
	if a.identityEvery > 0 && len(lines) >= a.identityEvery {
		mid := len(lines) / 2
		lines = append(lines[:mid], append([]string{a.identityReminder()}, lines[mid:]...)...)
		reminder = mid
	}

	lines = a.applyBudget(lines, reminder)
	lines = append(lines, a.formatLine(current))

	var sb strings.Builder
	fmt.Fprintf(&sb, "[Transcript - Last %d Messages]\n", len(lines))
	sb.WriteString(strings.Join(lines, "\n"))
	fmt.Fprintf(&sb, "\n\nReply to the last message as %s. Do not output internal thoughts.", a.botName)
	return sb.String()
}

func (a *Assembler) formatLine(m Message) string {
	speaker := m.Speaker
	if m.FromBot {
		speaker = a.botName
	}
	if speaker == "" {
		speaker = "User"
	}
	return fmt.Sprintf("[%s]: %s", speaker, m.Content)
}

func (a *Assembler) identityReminder() string {
	return fmt.Sprintf("(reminder: you are %s. The lines above and below are other people unless tagged [%s].)",
		a.botName, a.botName)
}

// applyBudget drops the oldest lines until the transcript fits. The
// reminder line and the most recent recentKeep lines are never dropped.
func (a *Assembler) applyBudget(lines []string, reminderIdx int) []string {
	if a.budgetChars <= 0 {
		return lines
	}

	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}

	drop := 0
	for total > a.budgetChars && drop < len(lines)-a.recentKeep {
		if drop == reminderIdx {
			drop++
			continue
		}
		total -= len(lines[drop]) + 1
		drop++
	}
	if drop == 0 {
		return lines
	}

	kept := make([]string, 0, len(lines)-drop)
	if reminderIdx >= 0 && reminderIdx < drop {
		kept = append(kept, lines[reminderIdx])
	}
	kept = append(kept, lines[drop:]...)
	return kept
}
