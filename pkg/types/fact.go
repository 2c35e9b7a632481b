package types

import "time"

// MemoryFact is a vector-store record: one remembered statement with its
// embedding and grading metadata. Facts are append-only; they are created
// by the observer pipeline after grading and never mutated or deleted by
// the core.
type MemoryFact struct {
	// ID is a ULID, lexically sortable by creation time.
	ID string `json:"id"`

	// Text is the verbatim statement ("USER: ...\nASSISTANT: ...").
	Text string `json:"text"`

	// Summary is the one-sentence synopsis generated by the observer.
	Summary string `json:"summary,omitempty"`

	// Embedding is the fixed-width float vector for Text.
	Embedding []float32 `json:"embedding,omitempty"`

	// UtilityTier drives the decay half-life. Never TierDiscard for a
	// persisted fact.
	UtilityTier UtilityTier `json:"utility_tier"`

	// FactType is core/preference/episodic. Core facts never decay.
	FactType FactType `json:"fact_type"`

	// RetrievalQueries are 2-3 generated questions this fact could answer
	// later, stored to improve future recall.
	RetrievalQueries []string `json:"retrieval_queries,omitempty"`

	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`

	ConversationID string    `json:"conversation_id,omitempty"`
	TurnIndex      int       `json:"turn_index,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// UtilityScore returns the confidence-weighted utility score used for
// relevance scoring and half-life selection.
func (f *MemoryFact) UtilityScore() float64 {
	return f.UtilityTier.Score() * f.Confidence
}

// AgeDays returns the fact's age in days at the given instant.
func (f *MemoryFact) AgeDays(now time.Time) float64 {
	return now.Sub(f.CreatedAt).Hours() / 24.0
}

// Turn roles.
const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

// ConversationTurn is one message in the bounded recent-turn window.
// Turns are held in memory only; raw transcript persistence is not a
// concern of this core.
type ConversationTurn struct {
	Role      string    `json:"role"` // TurnUser or TurnAssistant
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
