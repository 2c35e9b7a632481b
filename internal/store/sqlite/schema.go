package sqlite

// schemaSQL creates the fact and graph tables. Facts hold the vector
// side (embeddings serialized as little-endian float32 BLOBs);
// entities and relationships hold the graph side. Relationships are
// never deleted: supersession flips status and sets superseded_by.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS facts (
	id               TEXT PRIMARY KEY,
	text             TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	embedding        BLOB NOT NULL,
	dimension        INTEGER NOT NULL,
	utility_tier     TEXT NOT NULL,
	fact_type        TEXT NOT NULL,
	retrieval_queries TEXT NOT NULL DEFAULT '[]',
	source           TEXT NOT NULL,
	confidence       REAL NOT NULL,
	conversation_id  TEXT NOT NULL DEFAULT '',
	turn_index       INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_created_at ON facts(created_at DESC);

CREATE TABLE IF NOT EXISTS entities (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	type            TEXT NOT NULL,
	attributes      TEXT NOT NULL DEFAULT '{}',
	first_mentioned TIMESTAMP NOT NULL,
	last_mentioned  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL,
	subject        TEXT NOT NULL,
	predicate      TEXT NOT NULL,
	object_id      TEXT,
	object         TEXT NOT NULL,
	temporal_state TEXT NOT NULL DEFAULT 'ongoing',
	status         TEXT NOT NULL DEFAULT 'active',
	superseded_by  TEXT,
	valid_until    TIMESTAMP,
	source         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rel_subject ON relationships(subject);
CREATE INDEX IF NOT EXISTS idx_rel_object ON relationships(object);
CREATE INDEX IF NOT EXISTS idx_rel_status ON relationships(status);
`
