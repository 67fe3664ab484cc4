package generate

import "github.com/revisionhiep-create/Project-Astral/internal/config"

// Creativity spikes for loop breaking. Values are deltas above the
// profile baseline, each with a hard cap so an already-hot profile cannot
// run away.

const (
	stuckTempDelta = 0.15
	stuckPresDelta = 0.20
	stuckFreqDelta = 0.10

	regenTempDelta = 0.20
	regenPresDelta = 0.30
	regenFreqDelta = 0.15

	tempCap = 1.2
	presCap = 0.6
	freqCap = 0.25

	// The pre-generation stuck spike uses a tighter presence cap; it fires
	// on weaker evidence than a detected output loop.
	stuckPresCap = 0.5
)

// StuckSpike raises samplers for a first generation when the incoming
// message suggests the conversation is already circling (user echoed the
// bot, or repeated themselves verbatim).
func StuckSpike(req *Request, p config.BackendProfile) {
	req.Temperature = capped(p.Temperature+stuckTempDelta, tempCap)
	req.PresencePenalty = capped(p.PresencePenalty+stuckPresDelta, stuckPresCap)
	req.FrequencyPenalty = capped(p.FrequencyPenalty+stuckFreqDelta, freqCap)
}

// RegenSpike raises samplers for the single bounded regeneration after an
// output loop is detected.
func RegenSpike(req *Request, p config.BackendProfile) {
	req.Temperature = capped(p.Temperature+regenTempDelta, tempCap)
	req.PresencePenalty = capped(p.PresencePenalty+regenPresDelta, presCap)
	req.FrequencyPenalty = capped(p.FrequencyPenalty+regenFreqDelta, freqCap)
}

func capped(v, limit float64) *float64 {
	if v > limit {
		v = limit
	}
	return &v
}
