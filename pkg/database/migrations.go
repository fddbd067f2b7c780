package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates the full-text search GIN indexes over turns
// and memory_items that the ent schema's generated DDL does not express
// (the tsv column is computed in SQL; the GIN index over it is raw SQL,
// same split the teacher uses for alert_sessions).
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_turns_tsv_gin ON turns USING gin(tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_tsv_gin ON memory_items USING gin(tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_tags_gin ON memory_items USING gin(tags)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_affects_gin ON memory_items USING gin(affects)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// VectorIndexOptions configures the vector-index bootstrap routine.
type VectorIndexOptions struct {
	IndexType          string // "auto", "hnsw", "ivfflat"
	IVFFlatLists       int
	HNSWM              int
	HNSWEfConstruction int
}

// EnsureVectorIndexes creates approximate-nearest-neighbor indexes over
// turns.embedding and memory_items.embedding. When IndexType is "auto"
// it probes pg_am for an "hnsw" access method (available once pgvector
// >= 0.5 is installed) and falls back to ivfflat otherwise.
func EnsureVectorIndexes(ctx context.Context, driver *sql.Driver, opts VectorIndexOptions) error {
	db := driver.DB()

	indexType := opts.IndexType
	if indexType == "" || indexType == "auto" {
		indexType = detectVectorIndexType(ctx, db)
	}

	var stmts []string
	if indexType == "hnsw" {
		stmts = []string{
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_turns_embedding_hnsw ON turns USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`, opts.HNSWM, opts.HNSWEfConstruction),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_memory_items_embedding_hnsw ON memory_items USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`, opts.HNSWM, opts.HNSWEfConstruction),
		}
	} else {
		stmts = []string{
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_turns_embedding_ivfflat ON turns USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, opts.IVFFlatLists),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_memory_items_embedding_ivfflat ON memory_items USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, opts.IVFFlatLists),
		}
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}
	return nil
}

// detectVectorIndexType probes pg_am for hnsw support. Any query error
// (including pgvector not being installed yet) is treated as "no hnsw"
// rather than a fatal startup error — ivfflat is always available once
// the vector extension exists.
func detectVectorIndexType(ctx context.Context, db *stdsql.DB) string {
	var exists bool
	row := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_am WHERE amname = 'hnsw')`)
	if err := row.Scan(&exists); err != nil {
		return "ivfflat"
	}
	if exists {
		return "hnsw"
	}
	return "ivfflat"
}
