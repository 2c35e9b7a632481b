// Package postgres implements the Mnemo fact store on PostgreSQL with
// the pgvector extension. Vector search runs server-side over an HNSW
// index; the graph side mirrors the SQLite backend's tables.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// Store implements store.FactStore backed by PostgreSQL + pgvector.
type Store struct {
	db        *sql.DB
	dimension int
}

var _ store.FactStore = (*Store)(nil)

// Open connects to the database at dsn and applies the schema. The
// embedding dimension is fixed per store; it must match the configured
// embedding model (e.g. 768 for nomic-embed-text).
func Open(dsn string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", store.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf(schemaSQL, dimension)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, dimension: dimension}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// PersistFact writes a new memory fact. Facts are append-only.
func (s *Store) PersistFact(ctx context.Context, fact *types.MemoryFact) error {
	if fact.ID == "" {
		return fmt.Errorf("%w: fact ID is required", store.ErrInvalidInput)
	}
	if len(fact.Embedding) != s.dimension {
		return fmt.Errorf("%w: embedding dimension %d, store expects %d",
			store.ErrInvalidInput, len(fact.Embedding), s.dimension)
	}

	queries, err := json.Marshal(fact.RetrievalQueries)
	if err != nil {
		return fmt.Errorf("failed to encode retrieval queries: %w", err)
	}

	const insertSQL = `
		INSERT INTO facts (id, text, summary, embedding, utility_tier, fact_type,
			retrieval_queries, source, confidence, conversation_id, turn_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, insertSQL,
		fact.ID, fact.Text, fact.Summary, pgvector.NewVector(fact.Embedding),
		string(fact.UtilityTier), string(fact.FactType), string(queries),
		string(fact.Source), fact.Confidence,
		fact.ConversationID, fact.TurnIndex, fact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist fact: %w", err)
	}
	return nil
}

// VectorSearch returns the k most similar facts by cosine similarity,
// computed server-side against the HNSW index.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]store.VectorHit, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query embedding dimension %d, store expects %d",
			store.ErrInvalidInput, len(embedding), s.dimension)
	}
	if k <= 0 {
		k = 10
	}

	const querySQL = `
		SELECT id, text, summary, utility_tier, fact_type, retrieval_queries,
			source, confidence, conversation_id, turn_index, created_at,
			1 - (embedding <=> $1) AS similarity
		FROM facts
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, querySQL, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var hits []store.VectorHit
	for rows.Next() {
		var fact types.MemoryFact
		var tier, factType, source, queries string
		var similarity float64
		err := rows.Scan(&fact.ID, &fact.Text, &fact.Summary, &tier, &factType,
			&queries, &source, &fact.Confidence, &fact.ConversationID,
			&fact.TurnIndex, &fact.CreatedAt, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		fact.UtilityTier = types.UtilityTier(tier)
		fact.FactType = types.FactType(factType)
		fact.Source = types.Source(source)
		_ = json.Unmarshal([]byte(queries), &fact.RetrievalQueries)
		hits = append(hits, store.VectorHit{Fact: fact, Similarity: similarity})
	}
	return hits, rows.Err()
}

// PersistEntities upserts entities by canonical name, merging
// attributes last-write-wins per key in a single statement.
func (s *Store) PersistEntities(ctx context.Context, entities []types.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsertSQL = `
		INSERT INTO entities (id, name, type, attributes, first_mentioned, last_mentioned)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			attributes = entities.attributes || EXCLUDED.attributes,
			last_mentioned = EXCLUDED.last_mentioned`

	now := time.Now().UTC()
	for _, entity := range entities {
		if entity.Name == "" {
			return fmt.Errorf("%w: entity name is required", store.ErrInvalidInput)
		}
		id := entity.ID
		if id == "" {
			id = uuid.NewString()
		}
		attrs, _ := json.Marshal(entity.Attributes)
		if entity.Attributes == nil {
			attrs = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, id, entity.Name, entity.Type, string(attrs), now); err != nil {
			return fmt.Errorf("failed to upsert entity %q: %w", entity.Name, err)
		}
	}

	return tx.Commit()
}

// PersistRelationship writes a new relationship, resolving entity IDs
// from canonical names when not provided.
func (s *Store) PersistRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel.Subject == "" || rel.Predicate == "" || rel.Object == "" {
		return fmt.Errorf("%w: subject, predicate, and object are required", store.ErrInvalidInput)
	}
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.Status == "" {
		rel.Status = types.StatusActive
	}
	if rel.TemporalState == "" {
		rel.TemporalState = types.StateOngoing
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	if rel.SubjectID == "" {
		rel.SubjectID = s.entityID(ctx, rel.Subject)
	}
	if rel.ObjectID == "" {
		rel.ObjectID = s.entityID(ctx, rel.Object)
	}

	const insertSQL = `
		INSERT INTO relationships (id, subject_id, subject, predicate, object_id,
			object, temporal_state, status, superseded_by, valid_until, source,
			confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.ExecContext(ctx, insertSQL,
		rel.ID, rel.SubjectID, rel.Subject, rel.Predicate,
		nullable(rel.ObjectID), rel.Object,
		string(rel.TemporalState), string(rel.Status),
		nullable(rel.SupersededBy), rel.ValidUntil,
		string(rel.Source), rel.Confidence, rel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist relationship: %w", err)
	}
	return nil
}

// GraphSearch returns active, unexpired relationships touching any of
// the named entities in either role, newest first.
func (s *Store) GraphSearch(ctx context.Context, entityNames []string, k int) ([]types.Relationship, error) {
	if len(entityNames) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	const querySQL = relSelectColumns + `
		FROM relationships
		WHERE status = 'active'
		  AND (valid_until IS NULL OR valid_until > now())
		  AND (subject = ANY($1) OR object = ANY($1))
		ORDER BY created_at DESC
		LIMIT $2`

	return s.queryRelationships(ctx, querySQL, pq.Array(entityNames), k)
}

// GraphQuery returns all relationships where the named entity occupies
// the given role.
func (s *Store) GraphQuery(ctx context.Context, entityName string, role types.Role) ([]types.Relationship, error) {
	column := "subject"
	if role == types.RoleObject {
		column = "object"
	}
	query := relSelectColumns + ` FROM relationships WHERE ` + column + ` = $1 ORDER BY created_at DESC`
	return s.queryRelationships(ctx, query, entityName)
}

// MarkSuperseded flips oldID to superseded with a back-reference to
// newID via a single guarded UPDATE, atomic for concurrent readers.
func (s *Store) MarkSuperseded(ctx context.Context, oldID, newID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE relationships
		 SET status = 'superseded', superseded_by = $1, temporal_state = 'completed'
		 WHERE id = $2 AND status = 'active'`,
		newID, oldID)
	if err != nil {
		return fmt.Errorf("failed to mark relationship superseded: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM relationships WHERE id = $1`, oldID).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: relationship %s", store.ErrNotFound, oldID)
		}
		if err != nil {
			return fmt.Errorf("failed to check relationship status: %w", err)
		}
		return store.ErrAlreadySuperseded
	}
	return nil
}

const relSelectColumns = `
	SELECT id, subject_id, subject, predicate, object_id, object,
		temporal_state, status, superseded_by, valid_until, source,
		confidence, created_at`

func (s *Store) queryRelationships(ctx context.Context, query string, args ...interface{}) ([]types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var rel types.Relationship
		var objectID, supersededBy sql.NullString
		var validUntil sql.NullTime
		err := rows.Scan(&rel.ID, &rel.SubjectID, &rel.Subject, &rel.Predicate,
			&objectID, &rel.Object, &rel.TemporalState, &rel.Status,
			&supersededBy, &validUntil, &rel.Source, &rel.Confidence, &rel.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rel.ObjectID = objectID.String
		rel.SupersededBy = supersededBy.String
		if validUntil.Valid {
			t := validUntil.Time
			rel.ValidUntil = &t
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (s *Store) entityID(ctx context.Context, name string) string {
	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = $1`, name).Scan(&id); err != nil {
		return ""
	}
	return id
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
