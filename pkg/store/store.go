package store

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// Store wraps a pooled *sql.DB connection and exposes typed CRUD and
// search methods over the memory service's entities.
type Store struct {
	db *sql.DB
}

// New constructs a Store over an already-opened, already-migrated
// connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func newID() string {
	return uuid.New().String()
}

func marshalMeta(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func unmarshalMeta(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func marshalStrings(s []string) ([]byte, error) {
	if s == nil {
		s = []string{}
	}
	return json.Marshal(s)
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var s []string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == nil {
		s = []string{}
	}
	return s, nil
}
