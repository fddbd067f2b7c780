package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Job holds the schema definition for the Job entity: a unit of
// background work (distillation, retention sweep, embedding backfill)
// claimed by a worker via SELECT ... FOR UPDATE SKIP LOCKED.
type Job struct {
	ent.Schema
}

// Fields of the Job.
func (Job) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("job_id").
			Unique().
			Immutable(),
		field.String("type").
			Immutable(),
		field.Enum("status").
			Values("pending", "running", "done", "failed").
			Default("pending"),
		field.JSON("payload", map[string]interface{}{}),
		field.Time("run_at").
			Default(time.Now),
		field.Int("attempts").
			Default(0),
		field.Text("last_error").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the Job.
func (Job) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "run_at"),
		index.Fields("type", "status"),
	}
}
