// Package chromem implements the vector half of the Mnemo fact store
// on chromem-go, a pure-Go embedded vector database. It persists to
// disk without an external process, making it a drop-in alternative to
// the SQLite backend's in-process scan when fact volumes grow. The
// graph half must come from another backend; chromem has no relational
// model.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

const collectionName = "facts"

// Store implements store.VectorStore backed by chromem-go.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection
}

var _ store.VectorStore = (*Store)(nil)

// Open creates or loads a persistent store at path. An empty path keeps
// everything in memory.
func Open(path string) (*Store, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding
	// function is configured.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	return &Store{db: db, col: col}, nil
}

// Close is a no-op; chromem flushes on write.
func (s *Store) Close() error {
	return nil
}

// PersistFact writes a new fact as a chromem document. The fact's
// scalar fields ride along as metadata so VectorSearch can rebuild it.
func (s *Store) PersistFact(ctx context.Context, fact *types.MemoryFact) error {
	if fact.ID == "" {
		return fmt.Errorf("%w: fact ID is required", store.ErrInvalidInput)
	}
	if len(fact.Embedding) == 0 {
		return fmt.Errorf("%w: embedding cannot be empty", store.ErrInvalidInput)
	}

	queries, err := json.Marshal(fact.RetrievalQueries)
	if err != nil {
		return fmt.Errorf("failed to encode retrieval queries: %w", err)
	}

	doc := chromem.Document{
		ID:        fact.ID,
		Content:   fact.Text,
		Embedding: fact.Embedding,
		Metadata: map[string]string{
			"summary":           fact.Summary,
			"utility_tier":      string(fact.UtilityTier),
			"fact_type":         string(fact.FactType),
			"retrieval_queries": string(queries),
			"source":            string(fact.Source),
			"confidence":        strconv.FormatFloat(fact.Confidence, 'f', -1, 64),
			"conversation_id":   fact.ConversationID,
			"turn_index":        strconv.Itoa(fact.TurnIndex),
			"created_at":        fact.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

// VectorSearch returns the k most similar facts by cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]store.VectorHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding cannot be empty", store.ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}

	// chromem rejects nResults larger than the collection.
	if count := s.col.Count(); count < k {
		if count == 0 {
			return nil, nil
		}
		k = count
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	hits := make([]store.VectorHit, 0, len(results))
	for _, result := range results {
		fact := factFromDocument(result)
		hits = append(hits, store.VectorHit{Fact: fact, Similarity: float64(result.Similarity)})
	}
	return hits, nil
}

func factFromDocument(result chromem.Result) types.MemoryFact {
	meta := result.Metadata
	confidence, _ := strconv.ParseFloat(meta["confidence"], 64)
	turnIndex, _ := strconv.Atoi(meta["turn_index"])
	createdAt, _ := time.Parse(time.RFC3339Nano, meta["created_at"])

	fact := types.MemoryFact{
		ID:             result.ID,
		Text:           result.Content,
		Summary:        meta["summary"],
		Embedding:      result.Embedding,
		UtilityTier:    types.UtilityTier(meta["utility_tier"]),
		FactType:       types.FactType(meta["fact_type"]),
		Source:         types.Source(meta["source"]),
		Confidence:     confidence,
		ConversationID: meta["conversation_id"],
		TurnIndex:      turnIndex,
		CreatedAt:      createdAt,
	}
	if q := meta["retrieval_queries"]; q != "" && strings.HasPrefix(q, "[") {
		_ = json.Unmarshal([]byte(q), &fact.RetrievalQueries)
	}
	return fact
}
