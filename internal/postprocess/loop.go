package postprocess

import (
	"strings"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// LoopState tracks one turn through the loop breaker.
type LoopState int

const (
	// StateGenerated: first candidate produced, not yet checked.
	StateGenerated LoopState = iota
	// StateLoopDetected: candidate echoes the previous bot turn; the
	// caller should regenerate once with spiked samplers.
	StateLoopDetected
	// StateRegenerated: the single bounded regeneration has run.
	StateRegenerated
	// StateAccepted: candidate cleared for sending.
	StateAccepted
)

func (s LoopState) String() string {
	switch s {
	case StateGenerated:
		return "generated"
	case StateLoopDetected:
		return "loop_detected"
	case StateRegenerated:
		return "regenerated"
	case StateAccepted:
		return "accepted"
	}
	return "unknown"
}

// Similarity above this against the previous bot turn counts as a loop.
const DefaultLoopThreshold = 0.6

// Texts shorter than this are too small for a meaningful ratio.
const minLoopLength = 10

// Breaker runs the loop check for a single turn. One regeneration at
// most: a second collision is accepted rather than retried.
type Breaker struct {
	threshold  float64
	state      LoopState
	similarity float64
}

// NewBreaker returns a breaker with the given threshold; pass 0 for the
// default.
func NewBreaker(threshold float64) *Breaker {
	if threshold <= 0 {
		threshold = DefaultLoopThreshold
	}
	return &Breaker{threshold: threshold, state: StateGenerated}
}

// State returns the current turn state.
func (b *Breaker) State() LoopState { return b.state }

// Similarity returns the ratio measured by the last Evaluate call.
func (b *Breaker) Similarity() float64 { return b.similarity }

// Evaluate checks a cleaned candidate against the previous bot turn and
// advances the state machine. On the first call a loop moves the state to
// StateLoopDetected; after MarkRegenerated every candidate is accepted,
// looping or not.
func (b *Breaker) Evaluate(candidate, previousBotTurn string) LoopState {
	if len(candidate) <= minLoopLength || len(previousBotTurn) <= minLoopLength {
		b.state = StateAccepted
		return b.state
	}

	b.similarity = Similarity(strings.ToLower(candidate), strings.ToLower(previousBotTurn))
	looping := b.similarity > b.threshold

	switch b.state {
	case StateGenerated:
		if looping {
			logging.Postprocess("Output loop detected (similarity=%.2f), regenerating with spiked samplers", b.similarity)
			b.state = StateLoopDetected
		} else {
			b.state = StateAccepted
		}
	case StateRegenerated:
		if looping {
			logging.Postprocess("Regeneration still similar (%.2f); accepting rather than retrying", b.similarity)
		}
		b.state = StateAccepted
	default:
		b.state = StateAccepted
	}
	return b.state
}

// MarkRegenerated records that the bounded regeneration ran. The next
// Evaluate accepts its candidate unconditionally.
func (b *Breaker) MarkRegenerated() {
	b.state = StateRegenerated
}
