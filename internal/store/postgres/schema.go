package postgres

// schemaSQL creates the Mnemo tables. The embedding column uses the
// pgvector extension; the dimension is fixed at table-creation time by
// the configured embedding model.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS facts (
	id                TEXT PRIMARY KEY,
	text              TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	embedding         vector(%d) NOT NULL,
	utility_tier      TEXT NOT NULL,
	fact_type         TEXT NOT NULL,
	retrieval_queries JSONB NOT NULL DEFAULT '[]',
	source            TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	conversation_id   TEXT NOT NULL DEFAULT '',
	turn_index        INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_facts_embedding
	ON facts USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS entities (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	type            TEXT NOT NULL DEFAULT '',
	attributes      JSONB NOT NULL DEFAULT '{}',
	first_mentioned TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_mentioned  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL DEFAULT '',
	subject        TEXT NOT NULL,
	predicate      TEXT NOT NULL,
	object_id      TEXT,
	object         TEXT NOT NULL,
	temporal_state TEXT NOT NULL DEFAULT 'ongoing',
	status         TEXT NOT NULL DEFAULT 'active',
	superseded_by  TEXT,
	valid_until    TIMESTAMPTZ,
	source         TEXT NOT NULL DEFAULT 'user_stated',
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_relationships_subject ON relationships (subject);
CREATE INDEX IF NOT EXISTS idx_relationships_object ON relationships (object);
CREATE INDEX IF NOT EXISTS idx_relationships_status ON relationships (status);
CREATE INDEX IF NOT EXISTS idx_relationships_created_at ON relationships (created_at);
`
