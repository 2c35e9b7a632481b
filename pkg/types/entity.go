package types

import "time"

// Entity is a typed node in the graph store. Entities are created on
// first mention and merged on subsequent mentions when the canonical
// name matches; attribute updates are last-write-wins per key.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"` // canonical surface form
	Type string `json:"type"` // free-form label: Person, Place, Organization, ...

	// Attributes maps attribute name to value (age, role, birthday, ...).
	Attributes map[string]string `json:"attributes,omitempty"`

	FirstMentioned time.Time `json:"first_mentioned"`
	LastMentioned  time.Time `json:"last_mentioned"`
}

// Relationship is a typed edge between a subject entity and either
// another entity or a literal value (e.g. AGE 24). Relationships are
// created by the observer pipeline and mutated only by supersession;
// they are never physically deleted.
type Relationship struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_entity_id"`
	Subject   string `json:"subject"` // denormalized canonical name
	Predicate string `json:"predicate"`

	// ObjectID is set when the object is an entity; Object always holds
	// the surface form (entity name or literal value).
	ObjectID string `json:"object_entity_id,omitempty"`
	Object   string `json:"object"`

	TemporalState TemporalState      `json:"temporal_state"`
	Status        RelationshipStatus `json:"status"`

	// SupersededBy references the relationship that replaced this one.
	// Non-null iff Status is StatusSuperseded, and the referenced
	// relationship was created strictly later.
	SupersededBy string `json:"superseded_by,omitempty"`

	// ValidUntil is an optional expiry for episodic facts.
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	Source     Source    `json:"source"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the relationship should be visible to
// retrieval: not superseded and not expired at the given instant.
func (r *Relationship) Active(now time.Time) bool {
	if r.Status == StatusSuperseded {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	return true
}

// Statement renders the relationship as "subject PREDICATE object".
func (r *Relationship) Statement() string {
	return r.Subject + " " + r.Predicate + " " + r.Object
}
