package store

import "fmt"

// schemaStatements returns the DDL, one statement per entry. Embedding
// columns are F32_BLOB(dims) so libSQL can vector-index them.
func schemaStatements(dims int) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			frame_top TEXT NOT NULL,
			frame_bottom TEXT NOT NULL,
			bounded TEXT NOT NULL,
			structure_type TEXT NOT NULL,
			containment_argument TEXT NOT NULL DEFAULT '',
			commentary TEXT NOT NULL DEFAULT '',
			source_name TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			source_snippet TEXT NOT NULL DEFAULT '',
			frame_top_embedding F32_BLOB(%d),
			frame_bottom_embedding F32_BLOB(%d),
			bounded_embedding F32_BLOB(%d),
			artifact_embedding F32_BLOB(%d),
			frame_compatibility REAL NOT NULL,
			containment REAL NOT NULL,
			non_triviality REAL NOT NULL,
			novelty REAL NOT NULL,
			overall_score REAL NOT NULL,
			validation_rationale TEXT NOT NULL DEFAULT '',
			recommendation TEXT NOT NULL,
			cluster_id INTEGER,
			created_at TEXT NOT NULL
		)`, dims, dims, dims, dims),
		`CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts (structure_type)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_vector ON artifacts (libsql_vector_idx(artifact_embedding))`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingredients (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			kind TEXT NOT NULL,
			embedding F32_BLOB(%d),
			usage_count INTEGER NOT NULL DEFAULT 1,
			first_artifact_id TEXT NOT NULL,
			first_seen_at TEXT NOT NULL,
			UNIQUE (text, kind)
		)`, dims),
		`CREATE TABLE IF NOT EXISTS artifact_ingredients (
			artifact_id TEXT NOT NULL REFERENCES artifacts (id),
			ingredient_id TEXT NOT NULL REFERENCES ingredients (id),
			role TEXT NOT NULL,
			PRIMARY KEY (artifact_id, ingredient_id, role)
		)`,

		`CREATE TABLE IF NOT EXISTS relations (
			id TEXT PRIMARY KEY,
			artifact_a TEXT NOT NULL REFERENCES artifacts (id),
			artifact_b TEXT NOT NULL REFERENCES artifacts (id),
			type TEXT NOT NULL,
			similarity REAL NOT NULL,
			rationale TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (artifact_a, artifact_b, type)
		)`,

		`CREATE TABLE IF NOT EXISTS structure_types (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			parent TEXT,
			example_artifact_id TEXT,
			is_proposed INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			successes INTEGER NOT NULL DEFAULT 0,
			disposition TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions (id),
			seq INTEGER NOT NULL,
			state TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload TEXT,
			reason TEXT NOT NULL DEFAULT '',
			UNIQUE (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints (session_id, seq)`,
	}
}
