package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MemoryItem holds the schema definition for the MemoryItem entity, one
// curated, distilled knowledge item belonging to a Thread.
type MemoryItem struct {
	ent.Schema
}

// Fields of the MemoryItem.
func (MemoryItem) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("memory_item_id").
			Unique().
			Immutable(),
		field.String("thread_id").
			Immutable(),
		field.Enum("type").
			Values("decision", "constraint", "mistake", "assumption", "open_question"),
		field.Enum("status").
			Values("active", "superseded", "deprecated").
			Default("active"),
		field.String("title"),
		field.Text("statement"),
		field.Float("importance").
			Default(0.5).
			Comment("0..1, clamped"),
		field.Float("confidence").
			Default(0.5).
			Comment("0..1, clamped"),
		field.Float("severity").
			Default(0.0).
			Comment("0..1, clamped"),
		field.JSON("tags", []string{}).
			Optional().
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.JSON("affects", []string{}).
			Optional().
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.JSON("code_refs", []string{}).
			Optional().
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.JSON("evidence_turn_ids", []string{}).
			Optional().
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.String("supersedes_id").
			Optional().
			Nillable(),
		field.String("superseded_by_id").
			Optional().
			Nillable(),
		field.Text("supersede_reason").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Bytes("embedding").
			Optional().
			Nillable().
			Comment("Raw float32 vector, written via pkg/store's vector codec"),
		field.JSON("meta", map[string]interface{}{}).
			Optional(),
	}
}

// Edges of the MemoryItem.
func (MemoryItem) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).
			Ref("memory_items").
			Field("thread_id").
			Unique().
			Required().
			Immutable().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the MemoryItem.
func (MemoryItem) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("thread_id", "type", "status"),
		index.Fields("thread_id", "status", "importance", "updated_at"),
	}
}

// Annotations for PostgreSQL-specific features. CHECK constraints on
// importance/confidence/severity ranges are declared in
// pkg/database/migrations/000001_init_schema.up.sql, and the
// tags/affects/tsv GIN indexes plus the embedding vector index are
// created by pkg/database/migrations.go — ent has no range-constraint or
// vector/tsvector primitive, same split the teacher uses for its own
// full-text columns.
func (MemoryItem) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
