package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// Thread holds the schema definition for the Thread entity, a single
// conversation line within a Plan.
type Thread struct {
	ent.Schema
}

// Fields of the Thread.
func (Thread) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("thread_id").
			Unique().
			Immutable(),
		field.String("plan_id").
			Comment("Owning plan"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.JSON("meta", map[string]interface{}{}).
			Optional(),
	}
}

// Edges of the Thread.
func (Thread) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("plan", Plan.Type).
			Ref("threads").
			Field("plan_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("turns", Turn.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("memory_items", MemoryItem.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}
