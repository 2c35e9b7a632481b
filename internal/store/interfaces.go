// Package store provides composable storage interfaces for the Mnemo
// memory system.
//
// The fact store is split into two small interfaces that can be
// implemented independently: a vector-similarity store for memory facts
// and a graph store for entities and relationships. Backends compose
// them as needed (the SQLite and Postgres backends implement both; the
// chromem backend implements VectorStore only).
package store

import (
	"context"
	"errors"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// VectorHit pairs a fact with its similarity to the query embedding.
type VectorHit struct {
	Fact       types.MemoryFact
	Similarity float64 // cosine similarity in [-1, 1]
}

// VectorStore persists memory facts and retrieves them by embedding
// similarity. Facts are append-only.
type VectorStore interface {
	// PersistFact writes a new fact. The embedding must be non-empty.
	PersistFact(ctx context.Context, fact *types.MemoryFact) error

	// VectorSearch returns up to k facts ranked by cosine similarity to
	// the query embedding, most similar first.
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]VectorHit, error)
}

// GraphStore persists typed entities and relationships and serves the
// graph side of retrieval and contradiction checking.
type GraphStore interface {
	// PersistEntities upserts entities by canonical name. Attributes
	// merge last-write-wins per key; an existing entity is never
	// duplicated when the name matches.
	PersistEntities(ctx context.Context, entities []types.Entity) error

	// PersistRelationship writes a new relationship and returns it with
	// its assigned ID.
	PersistRelationship(ctx context.Context, rel *types.Relationship) error

	// GraphSearch returns up to k active, unexpired relationships that
	// touch any of the named entities (either role), newest first.
	GraphSearch(ctx context.Context, entityNames []string, k int) ([]types.Relationship, error)

	// GraphQuery returns all relationships in which the named entity
	// occupies the given role. Both roles must be supported: the
	// contradiction resolver depends on object-side lookup.
	GraphQuery(ctx context.Context, entityName string, role types.Role) ([]types.Relationship, error)

	// MarkSuperseded flips oldID to superseded with a back-reference to
	// newID. The flip is atomic with respect to concurrent readers: once
	// the call returns, no reader observes oldID as active. Marking an
	// already-superseded relationship is a no-op and returns
	// ErrAlreadySuperseded.
	MarkSuperseded(ctx context.Context, oldID, newID string) error
}

// ErrAlreadySuperseded signals a supersession attempt on a relationship
// that was already superseded. Callers treat it as a logged no-op.
var ErrAlreadySuperseded = errors.New("relationship already superseded")

// FactStore is the full adapter consumed by the engine: both halves
// plus lifecycle.
type FactStore interface {
	VectorStore
	GraphStore
	Close() error
}
