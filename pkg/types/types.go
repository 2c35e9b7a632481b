// Package types defines the shared data model for the Mnemo memory system:
// memory facts, entities, relationships, and the enumerations that drive
// utility grading, temporal decay, and supersession.
package types

import (
	"strings"
	"unicode"
)

// UtilityTier classifies how durable a piece of information is.
// Mnemo uses the simplified 3-level taxonomy: DISCARD turns are never
// persisted, STORE covers preferences and general facts, IMPORTANT covers
// identity and life-defining facts.
type UtilityTier string

const (
	TierDiscard   UtilityTier = "discard"
	TierStore     UtilityTier = "store"
	TierImportant UtilityTier = "important"
)

// Score maps a tier to the utility score persisted with each fact.
// The score drives the decay half-life selection in the engine.
func (t UtilityTier) Score() float64 {
	switch t {
	case TierImportant:
		return 1.0
	case TierStore:
		return 0.6
	default:
		return 0.0
	}
}

// ParseUtilityTier parses an LLM grading response into a tier. The
// response is trimmed of surrounding whitespace and punctuation and
// case-folded before matching; graders routinely emit "DISCARD\n" or
// "DISCARD.". Unknown values fall back to TierStore so that a confused
// grader never silently discards content.
func ParseUtilityTier(s string) UtilityTier {
	normalized := strings.ToUpper(strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
	switch normalized {
	case "DISCARD":
		return TierDiscard
	case "IMPORTANT":
		return TierImportant
	case "STORE":
		return TierStore
	default:
		return TierStore
	}
}

// FactType is the semantic category of a fact, independent of but
// correlated with utility tier. Core facts never decay.
type FactType string

const (
	FactCore       FactType = "core"
	FactPreference FactType = "preference"
	FactEpisodic   FactType = "episodic"
)

// IsValidFactType reports whether s is a recognized fact type.
func IsValidFactType(s string) bool {
	switch FactType(s) {
	case FactCore, FactPreference, FactEpisodic:
		return true
	}
	return false
}

// Source records who asserted a fact.
type Source string

const (
	SourceUserStated        Source = "user_stated"
	SourceAssistantInferred Source = "assistant_inferred"
)

// ConfidenceFor returns the confidence a fact from the given source may
// carry: user statements are fully trusted, inferred facts are capped at
// 0.3 absent explicit confirmation.
func ConfidenceFor(s Source) float64 {
	if s == SourceUserStated {
		return 1.0
	}
	return 0.3
}

// TemporalState describes whether a relationship is an ongoing situation,
// a completed one, or a future plan.
type TemporalState string

const (
	StateOngoing   TemporalState = "ongoing"
	StateCompleted TemporalState = "completed"
	StatePlanned   TemporalState = "planned"
)

// RelationshipStatus is the supersession state of a relationship.
// Superseded relationships are retained for audit but excluded from
// retrieval.
type RelationshipStatus string

const (
	StatusActive     RelationshipStatus = "active"
	StatusSuperseded RelationshipStatus = "superseded"
)

// Role selects which side of a relationship an entity occupies in a
// graph query. Both roles must be supported: a new statement may
// reference an existing entity in either position.
type Role string

const (
	RoleSubject Role = "subject"
	RoleObject  Role = "object"
)
