package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Plan holds the schema definition for the Plan entity. A plan is the
// top-level grouping a thread belongs to; imported/shared packages that
// arrive without an explicit plan land in a sentinel plan named
// "imported" rather than failing.
type Plan struct {
	ent.Schema
}

// Fields of the Plan.
func (Plan) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("plan_id").
			Unique().
			Immutable(),
		field.String("name").
			Comment("Human-readable plan name"),
		field.Enum("status").
			Values("active", "archived").
			Default("active"),
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

// Edges of the Plan.
func (Plan) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("threads", Thread.Type),
	}
}

// Indexes of the Plan.
func (Plan) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "updated_at"),
		index.Fields("name"),
	}
}
