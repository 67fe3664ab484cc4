package pipeline

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageRetrieve Stage = "retrieve"
	StageRoute    Stage = "route"
	StageSearch   Stage = "search"
	StageGenerate Stage = "generate"
	StageLoop     Stage = "loop"
	StagePersist  Stage = "persist"
)

// Sentinel errors for the failure modes a turn can degrade through. None
// of them abort a turn; they classify what got skipped or reduced.
var (
	// ErrRetrievalDegraded: memory recall failed, the turn runs with no
	// long-term facts.
	ErrRetrievalDegraded = errors.New("memory retrieval degraded")

	// ErrSearchUnavailable: the search provider failed, the turn runs
	// without fresh results.
	ErrSearchUnavailable = errors.New("search unavailable")

	// ErrGenerationFailed: the completion backend failed and the user got
	// the apology fallback instead of a reply.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrLoopDetected: the reply was too similar to the previous one and a
	// spiked regeneration ran.
	ErrLoopDetected = errors.New("generation loop detected")
)

// StageError wraps a stage failure with an excerpt of the input that
// triggered it, so log lines are greppable back to a conversation.
type StageError struct {
	Stage   Stage
	Excerpt string
	Err     error
}

func (e *StageError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("[%s] %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("[%s] %v (input: %q)", e.Stage, e.Err, e.Excerpt)
}

func (e *StageError) Unwrap() error { return e.Err }

const excerptLen = 80

// stageError builds a StageError with a bounded input excerpt.
func stageError(stage Stage, input string, err error) *StageError {
	return &StageError{Stage: stage, Excerpt: clip(input, excerptLen), Err: err}
}

// clip bounds s to n bytes, backing up to a rune boundary so the excerpt
// stays valid UTF-8.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
