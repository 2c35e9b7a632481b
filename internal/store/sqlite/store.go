// Package sqlite implements the Mnemo fact store on an embedded SQLite
// database. Embeddings are stored as binary BLOBs and compared with
// in-process cosine similarity; the graph side lives in plain entity
// and relationship tables. Suitable for single-process deployments and
// tests; the postgres backend covers larger installations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// Store implements store.FactStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// Ensure Store satisfies the adapter interface at compile time.
var _ store.FactStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Serialized access avoids SQLITE_BUSY under concurrent observer writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PersistFact writes a new memory fact. Facts are append-only.
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

	const insertSQL = `
		INSERT INTO facts (id, text, summary, embedding, dimension, utility_tier,
			fact_type, retrieval_queries, source, confidence, conversation_id,
			turn_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, insertSQL,
		fact.ID, fact.Text, fact.Summary,
		serializeEmbedding(fact.Embedding), len(fact.Embedding),
		string(fact.UtilityTier), string(fact.FactType), string(queries),
		string(fact.Source), fact.Confidence,
		fact.ConversationID, fact.TurnIndex, fact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist fact: %w", err)
	}
	return nil
}

// VectorSearch scans stored embeddings and returns the k most similar
// facts by cosine similarity. The scan is in-process; for the dataset
// sizes a single conversational agent accumulates this stays well under
// retrieval latency budgets.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]store.VectorHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding cannot be empty", store.ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}

	const selectSQL = `
		SELECT id, text, summary, embedding, dimension, utility_tier, fact_type,
			retrieval_queries, source, confidence, conversation_id, turn_index, created_at
		FROM facts`

	rows, err := s.db.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var hits []store.VectorHit
	for rows.Next() {
		fact, emb, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		sim, err := cosineSimilarity(embedding, emb)
		if err != nil {
			// Dimension mismatch (embedding model changed); skip the row.
			continue
		}
		fact.Embedding = emb
		hits = append(hits, store.VectorHit{Fact: *fact, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate facts: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// PersistEntities upserts entities by canonical name. Attribute merge is
// last-write-wins per key, performed inside a transaction so concurrent
// observers don't clobber each other's attribute sets.
func (s *Store) PersistEntities(ctx context.Context, entities []types.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, entity := range entities {
		if entity.Name == "" {
			return fmt.Errorf("%w: entity name is required", store.ErrInvalidInput)
		}

		var existingID, existingAttrs string
		err := tx.QueryRowContext(ctx,
			`SELECT id, attributes FROM entities WHERE name = ?`, entity.Name,
		).Scan(&existingID, &existingAttrs)

		switch {
		case err == sql.ErrNoRows:
			id := entity.ID
			if id == "" {
				id = uuid.NewString()
			}
			attrs, _ := json.Marshal(nonNilAttrs(entity.Attributes))
			_, err = tx.ExecContext(ctx,
				`INSERT INTO entities (id, name, type, attributes, first_mentioned, last_mentioned)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				id, entity.Name, entity.Type, string(attrs), now, now)
			if err != nil {
				return fmt.Errorf("failed to insert entity %q: %w", entity.Name, err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up entity %q: %w", entity.Name, err)
		default:
			merged := map[string]string{}
			if existingAttrs != "" {
				_ = json.Unmarshal([]byte(existingAttrs), &merged)
			}
			for k, v := range entity.Attributes {
				merged[k] = v
			}
			attrs, _ := json.Marshal(merged)
			_, err = tx.ExecContext(ctx,
				`UPDATE entities SET type = ?, attributes = ?, last_mentioned = ? WHERE id = ?`,
				entity.Type, string(attrs), now, existingID)
			if err != nil {
				return fmt.Errorf("failed to update entity %q: %w", entity.Name, err)
			}
		}
	}

	return tx.Commit()
}

// PersistRelationship writes a new relationship. Subject and object
// entity IDs are resolved from canonical names when not provided.
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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

	query := relSelectColumns + `
		FROM relationships
		WHERE status = 'active'
		  AND (valid_until IS NULL OR valid_until > ?)
		  AND (subject IN (` + placeholders(len(entityNames)) + `)
		       OR object IN (` + placeholders(len(entityNames)) + `))
		ORDER BY created_at DESC
		LIMIT ?`

	args := make([]interface{}, 0, 2*len(entityNames)+2)
	args = append(args, time.Now().UTC())
	for _, n := range entityNames {
		args = append(args, n)
	}
	for _, n := range entityNames {
		args = append(args, n)
	}
	args = append(args, k)

	return s.queryRelationships(ctx, query, args...)
}

// GraphQuery returns all relationships where the named entity occupies
// the given role. Object-side lookup is required for correctness: a new
// statement may reference an existing entity in either position.
func (s *Store) GraphQuery(ctx context.Context, entityName string, role types.Role) ([]types.Relationship, error) {
	column := "subject"
	if role == types.RoleObject {
		column = "object"
	}
	query := relSelectColumns + ` FROM relationships WHERE ` + column + ` = ? ORDER BY created_at DESC`
	return s.queryRelationships(ctx, query, entityName)
}

// MarkSuperseded flips oldID to superseded with a back-reference to
// newID. The single guarded UPDATE makes the flip atomic for readers:
// a relationship is either active or superseded, never half-updated.
func (s *Store) MarkSuperseded(ctx context.Context, oldID, newID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE relationships
		 SET status = 'superseded', superseded_by = ?, temporal_state = 'completed'
		 WHERE id = ? AND status = 'active'`,
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
			`SELECT status FROM relationships WHERE id = ?`, oldID).Scan(&status)
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
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, name).Scan(&id); err != nil {
		return ""
	}
	return id
}

func scanFact(rows *sql.Rows) (*types.MemoryFact, []float32, error) {
	var fact types.MemoryFact
	var blob []byte
	var dimension int
	var tier, factType, source, queries string

	err := rows.Scan(&fact.ID, &fact.Text, &fact.Summary, &blob, &dimension,
		&tier, &factType, &queries, &source, &fact.Confidence,
		&fact.ConversationID, &fact.TurnIndex, &fact.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan fact: %w", err)
	}

	fact.UtilityTier = types.UtilityTier(tier)
	fact.FactType = types.FactType(factType)
	fact.Source = types.Source(source)
	_ = json.Unmarshal([]byte(queries), &fact.RetrievalQueries)

	emb, err := deserializeEmbedding(blob, dimension)
	if err != nil {
		return nil, nil, err
	}
	return &fact, emb, nil
}

// serializeEmbedding packs a float32 slice as little-endian bytes.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("embedding buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	embedding := make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

func placeholders(n int) string {
	s := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			s = append(s, ',')
		}
		s = append(s, '?')
	}
	return string(s)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonNilAttrs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
