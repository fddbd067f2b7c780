package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SharedPackage holds the schema definition for the SharedPackage
// entity: an HMAC-signed, expiring export bundle handed to an external
// collaborator outside this service's trust boundary.
type SharedPackage struct {
	ent.Schema
}

// Fields of the SharedPackage.
func (SharedPackage) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("shared_package_id").
			Unique().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at"),
		field.JSON("payload", map[string]interface{}{}),
		field.String("signature").
			Comment("HMAC-SHA256 over the canonical JSON payload"),
		field.JSON("meta", map[string]interface{}{}).
			Optional(),
	}
}

// Indexes of the SharedPackage.
func (SharedPackage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("expires_at"),
	}
}
