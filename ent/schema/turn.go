package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Turn holds the schema definition for the Turn entity, one ingested
// dialogue turn. The embedding and tsv columns are populated outside of
// ent (embedding via the LLM mediator at ingest time, tsv as a computed
// column in pkg/database/migrations/000001_init_schema.up.sql), matching the split
// the original Postgres schema uses between ORM-owned columns and
// database-computed ones.
type Turn struct {
	ent.Schema
}

// Fields of the Turn.
func (Turn) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("turn_id").
			Unique().
			Immutable(),
		field.String("thread_id").
			Immutable(),
		field.String("role").
			Comment("Free-form, e.g. user/assistant/system/tool"),
		field.Text("text"),
		field.Time("ts").
			Default(time.Now).
			Immutable(),
		field.JSON("meta", map[string]interface{}{}).
			Optional(),
		field.String("branch_id").
			Optional().
			Nillable(),
		field.String("external_turn_id").
			Optional().
			Nillable().
			Comment("Caller-supplied idempotency key, unique per thread"),
		field.Bytes("embedding").
			Optional().
			Nillable().
			Comment("Raw float32 vector, written via pkg/store's vector codec"),
	}
}

// Edges of the Turn.
func (Turn) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).
			Ref("turns").
			Field("thread_id").
			Unique().
			Required().
			Immutable().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Turn.
func (Turn) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("thread_id", "ts"),
		index.Fields("thread_id", "external_turn_id").
			Unique().
			Annotations(entsql.IndexWhere("external_turn_id IS NOT NULL")),
	}
}

// Annotations for PostgreSQL-specific features. The tsv/embedding GIN
// and ivfflat/hnsw indexes are created via migration hooks in
// pkg/database/migrations.go, not here — ent has no vector/tsvector
// column type, matching the teacher's own GIN-indexes-via-migration
// split for alert_sessions.
func (Turn) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
