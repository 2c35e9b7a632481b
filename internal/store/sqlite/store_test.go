package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testFact(id string, embedding []float32) *types.MemoryFact {
	return &types.MemoryFact{
		ID:          id,
		Text:        "USER: I work at Acme\nASSISTANT: noted",
		Embedding:   embedding,
		UtilityTier: types.TierImportant,
		FactType:    types.FactCore,
		Source:      types.SourceUserStated,
		Confidence:  1.0,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPersistFactRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	embedding := []float32{0.1, 0.9, 0.3, 0.2}
	require.NoError(t, s.PersistFact(ctx, testFact("fact-1", embedding)))

	// Searching with the fact's own embedding must return it as the top hit.
	hits, err := s.VectorSearch(ctx, embedding, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "fact-1", hits[0].Fact.ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 0.001)
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PersistFact(ctx, testFact("near", []float32{1, 0, 0})))
	require.NoError(t, s.PersistFact(ctx, testFact("far", []float32{0, 1, 0})))

	hits, err := s.VectorSearch(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Fact.ID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestVectorSearchSkipsDimensionMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PersistFact(ctx, testFact("old-model", []float32{1, 0})))
	require.NoError(t, s.PersistFact(ctx, testFact("new-model", []float32{1, 0, 0})))

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new-model", hits[0].Fact.ID)
}

func TestPersistEntitiesMergesAttributes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PersistEntities(ctx, []types.Entity{
		{Name: "Justine", Type: "Person", Attributes: map[string]string{"relationship": "sister", "age": "24"}},
	}))
	// Second mention updates age, keeps relationship.
	require.NoError(t, s.PersistEntities(ctx, []types.Entity{
		{Name: "Justine", Type: "Person", Attributes: map[string]string{"age": "25"}},
	}))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entities WHERE name = 'Justine'`).Scan(&count))
	assert.Equal(t, 1, count, "re-mention must not create a duplicate entity")

	var attrs string
	require.NoError(t, s.db.QueryRow(`SELECT attributes FROM entities WHERE name = 'Justine'`).Scan(&attrs))
	assert.Contains(t, attrs, `"age":"25"`)
	assert.Contains(t, attrs, `"relationship":"sister"`)
}

func TestGraphQueryByObjectRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rel := &types.Relationship{
		Subject: "User", Predicate: "WORKS_AT", Object: "Acme",
		Source: types.SourceUserStated, Confidence: 1.0,
	}
	require.NoError(t, s.PersistRelationship(ctx, rel))

	// Regression: a query for the object entity must find the relationship.
	byObject, err := s.GraphQuery(ctx, "Acme", types.RoleObject)
	require.NoError(t, err)
	require.Len(t, byObject, 1)
	assert.Equal(t, "WORKS_AT", byObject[0].Predicate)

	bySubject, err := s.GraphQuery(ctx, "User", types.RoleSubject)
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
}

func TestMarkSupersededExcludesFromSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := &types.Relationship{Subject: "User", Predicate: "WORKS_AT", Object: "CompanyA",
		Source: types.SourceUserStated, Confidence: 1.0}
	require.NoError(t, s.PersistRelationship(ctx, old))

	newer := &types.Relationship{Subject: "User", Predicate: "WORKS_AT", Object: "CompanyB",
		Source: types.SourceUserStated, Confidence: 1.0}
	require.NoError(t, s.PersistRelationship(ctx, newer))

	require.NoError(t, s.MarkSuperseded(ctx, old.ID, newer.ID))

	// Active-filtered search must never return the superseded fact.
	rels, err := s.GraphSearch(ctx, []string{"User"}, 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "CompanyB", rels[0].Object)

	// The audit record survives with the back-reference.
	all, err := s.GraphQuery(ctx, "User", types.RoleSubject)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rel := range all {
		if rel.ID == old.ID {
			assert.Equal(t, types.StatusSuperseded, rel.Status)
			assert.Equal(t, newer.ID, rel.SupersededBy)
		}
	}
}

func TestMarkSupersededIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := &types.Relationship{Subject: "Mom", Predicate: "VISITING", Object: "Philadelphia",
		Source: types.SourceUserStated, Confidence: 1.0}
	require.NoError(t, s.PersistRelationship(ctx, old))
	newer := &types.Relationship{Subject: "Mom", Predicate: "RETURNED_HOME", Object: "Massachusetts",
		Source: types.SourceUserStated, Confidence: 1.0}
	require.NoError(t, s.PersistRelationship(ctx, newer))

	require.NoError(t, s.MarkSuperseded(ctx, old.ID, newer.ID))

	// Second supersession attempt is a recognized no-op, not an error state.
	err := s.MarkSuperseded(ctx, old.ID, "some-other-id")
	assert.ErrorIs(t, err, store.ErrAlreadySuperseded)

	rels, err := s.GraphQuery(ctx, "Mom", types.RoleSubject)
	require.NoError(t, err)
	for _, rel := range rels {
		if rel.ID == old.ID {
			assert.Equal(t, newer.ID, rel.SupersededBy, "original back-reference must be preserved")
		}
	}
}

func TestMarkSupersededUnknownID(t *testing.T) {
	s := openTestStore(t)
	err := s.MarkSuperseded(context.Background(), "missing", "newer")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGraphSearchFiltersExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	expired := &types.Relationship{Subject: "User", Predicate: "VISITING", Object: "Philadelphia",
		ValidUntil: &past, Source: types.SourceUserStated, Confidence: 1.0}
	require.NoError(t, s.PersistRelationship(ctx, expired))

	rels, err := s.GraphSearch(ctx, []string{"User"}, 10)
	require.NoError(t, err)
	assert.Empty(t, rels, "expired episodic facts must not be returned")
}
