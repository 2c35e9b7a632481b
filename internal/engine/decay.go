// Package engine provides the context assembler, observer pipeline, and
// contradiction resolver that sit between the conversation layer and
// the fact stores.
package engine

import (
	"math"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

const (
	// Half-lives in days per utility band. A fact's utility score
	// (tier score weighted by confidence) selects the band.
	halfLifeHigh   = 180.0 // score >= 0.9
	halfLifeMedium = 60.0  // score >= 0.5
	halfLifeLow    = 14.0  // everything else
)

// HalfLives holds the per-band decay half-lives in days.
type HalfLives struct {
	HighDays   float64
	MediumDays float64
	LowDays    float64
}

// DefaultHalfLives returns the standard half-life bands.
func DefaultHalfLives() HalfLives {
	return HalfLives{HighDays: halfLifeHigh, MediumDays: halfLifeMedium, LowDays: halfLifeLow}
}

// For returns the decay half-life in days for a fact. Core facts return
// 0, which DecayMultiplier treats as "never decays".
func (h HalfLives) For(fact types.MemoryFact) float64 {
	if fact.FactType == types.FactCore {
		return 0
	}
	score := fact.UtilityScore()
	switch {
	case score >= 0.9:
		return h.HighDays
	case score >= 0.5:
		return h.MediumDays
	default:
		return h.LowDays
	}
}

// HalfLifeFor returns the half-life for a fact under the default bands.
func HalfLifeFor(fact types.MemoryFact) float64 {
	return DefaultHalfLives().For(fact)
}

// DecayMultiplier returns the temporal decay factor 0.5^(ageDays/halfLife),
// clamped to [0, 1]. A half-life of zero means no decay: the multiplier
// is 1.0 at any age. Negative ages (clock skew) are treated as zero.
func DecayMultiplier(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	if ageDays <= 0 {
		return 1.0
	}
	m := math.Pow(0.5, ageDays/halfLifeDays)
	return math.Min(math.Max(m, 0.0), 1.0)
}
