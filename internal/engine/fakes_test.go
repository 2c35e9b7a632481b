package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// fakeVectorStore serves canned hits and records persisted facts.
type fakeVectorStore struct {
	mu        sync.Mutex
	hits      []store.VectorHit
	searchErr error
	persisted []*types.MemoryFact
}

func (f *fakeVectorStore) PersistFact(_ context.Context, fact *types.MemoryFact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, fact)
	return nil
}

func (f *fakeVectorStore) VectorSearch(context.Context, []float32, int) ([]store.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeVectorStore) persistedFacts() []*types.MemoryFact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.MemoryFact(nil), f.persisted...)
}

// fakeGraphStore serves canned relationships and records writes.
type fakeGraphStore struct {
	mu         sync.Mutex
	rels       []types.Relationship
	searchErr  error
	entities   []types.Entity
	persisted  []*types.Relationship
	superseded map[string]string // oldID -> newID
}

func (f *fakeGraphStore) PersistEntities(_ context.Context, entities []types.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = append(f.entities, entities...)
	return nil
}

func (f *fakeGraphStore) PersistRelationship(_ context.Context, rel *types.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rel.ID == "" {
		rel.ID = "fake-rel"
	}
	f.persisted = append(f.persisted, rel)
	return nil
}

func (f *fakeGraphStore) GraphSearch(context.Context, []string, int) ([]types.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.rels, nil
}

func (f *fakeGraphStore) GraphQuery(_ context.Context, entityName string, role types.Role) ([]types.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Relationship
	for _, rel := range f.rels {
		if role == types.RoleSubject && rel.Subject == entityName {
			out = append(out, rel)
		}
		if role == types.RoleObject && rel.Object == entityName {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeGraphStore) MarkSuperseded(_ context.Context, oldID, newID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.superseded == nil {
		f.superseded = make(map[string]string)
	}
	if _, done := f.superseded[oldID]; done {
		return store.ErrAlreadySuperseded
	}
	f.superseded[oldID] = newID
	for i := range f.rels {
		if f.rels[i].ID == oldID {
			f.rels[i].Status = types.StatusSuperseded
			f.rels[i].SupersededBy = newID
		}
	}
	return nil
}

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vec == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.vec, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embedder" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeGenerator answers prompts by substring match against canned
// responses, recording every prompt it sees.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string // prompt substring -> response
	fallback  string
	err       error
	prompts   []string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for fragment, response := range f.responses {
		if strings.Contains(prompt, fragment) {
			return response, nil
		}
	}
	return f.fallback, nil
}

func (f *fakeGenerator) GetModel() string { return "fake-generator" }

func (f *fakeGenerator) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakeReranker scores candidates from a lookup table; unlisted
// candidates score 1.0. When errOn is set, only that candidate fails;
// otherwise a non-nil err fails every call.
type fakeReranker struct {
	scores map[string]float64
	errOn  string
	err    error
}

func (f *fakeReranker) Score(_ context.Context, _ string, candidate string) (float64, error) {
	if f.err != nil && (f.errOn == "" || f.errOn == candidate) {
		return 0, f.err
	}
	if score, ok := f.scores[candidate]; ok {
		return score, nil
	}
	return 1.0, nil
}
