package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memhub/memoryd/pkg/apperr"
)

// InsertMemoryItem inserts a new active memory item.
func (s *Store) InsertMemoryItem(ctx context.Context, m *MemoryItem) (*MemoryItem, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Status == "" {
		m.Status = MemoryStatusActive
	}
	tagsJSON, err := marshalStrings(m.Tags)
	if err != nil {
		return nil, err
	}
	affectsJSON, err := marshalStrings(m.Affects)
	if err != nil {
		return nil, err
	}
	codeRefsJSON, err := marshalStrings(m.CodeRefs)
	if err != nil {
		return nil, err
	}
	evidenceJSON, err := marshalStrings(m.EvidenceTurnIDs)
	if err != nil {
		return nil, err
	}
	metaJSON, err := marshalMeta(m.Meta)
	if err != nil {
		return nil, err
	}
	var embeddingArg any
	if m.Embedding != nil {
		embeddingArg = encodeVector(m.Embedding)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO memory_items (
			memory_item_id, thread_id, type, status, title, statement,
			importance, confidence, severity, tags, affects, code_refs,
			evidence_turn_ids, supersedes_id, supersede_reason, embedding, meta
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16::vector,$17)
		RETURNING created_at, updated_at`,
		m.ID, m.ThreadID, m.Type, m.Status, m.Title, m.Statement,
		m.Importance, m.Confidence, m.Severity, tagsJSON, affectsJSON, codeRefsJSON,
		evidenceJSON, m.SupersedesID, m.SupersedeReason, embeddingArg, metaJSON)
	if err := row.Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert memory item: %w", err)
	}
	return m, nil
}

// GetMemoryItem loads a memory item by id.
func (s *Store) GetMemoryItem(ctx context.Context, id string) (*MemoryItem, error) {
	row := s.db.QueryRowContext(ctx, memoryItemSelect+` WHERE memory_item_id = $1`, id)
	return scanMemoryItem(row)
}

// UpdateMemoryItemEvidence unions newEvidence into the item's existing
// evidence_turn_ids and bumps updated_at — the dedup merge step.
func (s *Store) UpdateMemoryItemEvidence(ctx context.Context, id string, newEvidence []string) error {
	item, err := s.GetMemoryItem(ctx, id)
	if err != nil {
		return err
	}
	union := unionStrings(item.EvidenceTurnIDs, newEvidence)
	evidenceJSON, err := marshalStrings(union)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_items SET evidence_turn_ids = $1, updated_at = now() WHERE memory_item_id = $2`,
		evidenceJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update memory item evidence: %w", err)
	}
	return requireAffected(res)
}

// MarkSuperseded transitions an item to status=superseded with the
// given back-pointer.
func (s *Store) MarkSuperseded(ctx context.Context, id, supersededByID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_items
		SET status = 'superseded', superseded_by_id = $1, updated_at = now()
		WHERE memory_item_id = $2`, supersededByID, id)
	if err != nil {
		return fmt.Errorf("failed to mark memory item superseded: %w", err)
	}
	return requireAffected(res)
}

// Deprecate transitions an item to status=deprecated, recording the
// reason in meta.deprecate_reason.
func (s *Store) Deprecate(ctx context.Context, id, reason string) (*MemoryItem, error) {
	item, err := s.GetMemoryItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Meta["deprecate_reason"] = reason
	metaJSON, err := marshalMeta(item.Meta)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_items SET status = 'deprecated', meta = $1, updated_at = now()
		WHERE memory_item_id = $2`, metaJSON, id)
	if err != nil {
		return nil, fmt.Errorf("failed to deprecate memory item: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetMemoryItem(ctx, id)
}

// OverrideScores updates any non-nil score and appends an override
// event to meta.overrides.
func (s *Store) OverrideScores(ctx context.Context, id string, importance, confidence, severity *float64, reason string) (*MemoryItem, error) {
	item, err := s.GetMemoryItem(ctx, id)
	if err != nil {
		return nil, err
	}
	overridesRaw, _ := item.Meta["overrides"].([]any)
	overridesRaw = append(overridesRaw, map[string]any{
		"importance": importance,
		"confidence": confidence,
		"severity":   severity,
		"reason":     reason,
		"ts":         time.Now().UTC().Format(time.RFC3339),
	})
	item.Meta["overrides"] = overridesRaw
	metaJSON, err := marshalMeta(item.Meta)
	if err != nil {
		return nil, err
	}

	importanceVal, confidenceVal, severityVal := item.Importance, item.Confidence, item.Severity
	if importance != nil {
		importanceVal = *importance
	}
	if confidence != nil {
		confidenceVal = *confidence
	}
	if severity != nil {
		severityVal = *severity
	}
	if importanceVal < 0 || importanceVal > 1 || confidenceVal < 0 || confidenceVal > 1 || severityVal < 0 || severityVal > 1 {
		return nil, apperr.NewValidationError("score", "importance, confidence, and severity must lie in [0,1]")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_items
		SET importance = $1, confidence = $2, severity = $3, meta = $4, updated_at = now()
		WHERE memory_item_id = $5`, importanceVal, confidenceVal, severityVal, metaJSON, id)
	if err != nil {
		return nil, fmt.Errorf("failed to override memory item scores: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetMemoryItem(ctx, id)
}

// ListByTypeStatus lists memory items in a thread by type and
// status, ordered by importance desc then updated_at desc.
func (s *Store) ListByTypeStatus(ctx context.Context, threadID, itemType, status string) ([]*MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`
		WHERE thread_id = $1 AND type = $2 AND status = $3
		ORDER BY importance DESC, updated_at DESC`, threadID, itemType, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory items: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// ListByStatus lists all memory items in a thread with the given
// status, ordered by updated_at desc.
func (s *Store) ListByStatus(ctx context.Context, threadID, status string) ([]*MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`
		WHERE thread_id = $1 AND status = $2
		ORDER BY updated_at DESC`, threadID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory items by status: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// ListActiveByTypes lists active memory items in a thread whose type is
// in the given set, used by shared export.
func (s *Store) ListActiveByTypes(ctx context.Context, threadID string, types []string) ([]*MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`
		WHERE thread_id = $1 AND status = 'active' AND type = ANY($2)`, threadID, pqStringArray(types))
	if err != nil {
		return nil, fmt.Errorf("failed to list memory items by type: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// VectorCandidate is a memory item candidate ranked by cosine distance.
type VectorCandidate struct {
	Item     *MemoryItem
	Distance float64
}

// VectorSearchMemory returns up to limit active, embedded items of the
// given type in thread, ordered by ascending cosine distance.
func (s *Store) VectorSearchMemory(ctx context.Context, threadID, itemType string, vector []float32, limit int) ([]VectorCandidate, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`, (embedding <=> $4::vector) AS distance
		WHERE thread_id = $1 AND type = $2 AND status = 'active' AND embedding IS NOT NULL
		ORDER BY embedding <=> $4::vector
		LIMIT $3`, threadID, itemType, limit, encodeVector(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to vector search memory items: %w", err)
	}
	defer rows.Close()
	return scanVectorCandidates(rows)
}

// VectorSearchMemoryAnyType returns up to limit active, embedded items
// in thread regardless of type, ordered by ascending cosine distance —
// used by retrieval (unlike dedup candidate search, which is
// type-scoped).
func (s *Store) VectorSearchMemoryAnyType(ctx context.Context, threadID string, vector []float32, limit int) ([]VectorCandidate, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`, (embedding <=> $3::vector) AS distance
		WHERE thread_id = $1 AND status = 'active' AND embedding IS NOT NULL
		ORDER BY embedding <=> $3::vector
		LIMIT $2`, threadID, limit, encodeVector(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to vector search memory items: %w", err)
	}
	defer rows.Close()
	return scanVectorCandidates(rows)
}

// KeywordSearchMemory returns up to limit active items of the given
// type in thread whose tsvector matches query.
func (s *Store) KeywordSearchMemory(ctx context.Context, threadID, itemType, query string, limit int) ([]*MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`
		WHERE thread_id = $1 AND type = $2 AND status = 'active' AND tsv @@ plainto_tsquery('english', $3)
		LIMIT $4`, threadID, itemType, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword search memory items: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// KeywordSearchMemoryAnyType mirrors KeywordSearchMemory without the
// type filter, used by retrieval.
func (s *Store) KeywordSearchMemoryAnyType(ctx context.Context, threadID, query string, limit int) ([]*MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`
		WHERE thread_id = $1 AND status = 'active' AND tsv @@ plainto_tsquery('english', $2)
		LIMIT $3`, threadID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to keyword search memory items: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// KeywordSearchSuperseded searches superseded items in thread matching
// query, used for stale-reference detection.
func (s *Store) KeywordSearchSuperseded(ctx context.Context, threadID, query string, limit int) ([]*MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, memoryItemSelect+`
		WHERE thread_id = $1 AND status = 'superseded' AND tsv @@ plainto_tsquery('english', $2)
		LIMIT $3`, threadID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search superseded memory items: %w", err)
	}
	defer rows.Close()
	return scanMemoryItems(rows)
}

// DeleteMemoryItemsOlderThan deletes memory items with updated_at
// before cutoff, returning the number of rows removed.
func (s *Store) DeleteMemoryItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old memory items: %w", err)
	}
	return res.RowsAffected()
}

const memoryItemSelect = `
	SELECT memory_item_id, thread_id, type, status, title, statement,
	       importance, confidence, severity, tags, affects, code_refs,
	       evidence_turn_ids, supersedes_id, superseded_by_id, supersede_reason,
	       created_at, updated_at, embedding::text, meta
	FROM memory_items`

func scanMemoryItem(row rowScanner) (*MemoryItem, error) {
	var m MemoryItem
	var tagsJSON, affectsJSON, codeRefsJSON, evidenceJSON, metaJSON []byte
	var embeddingText sql.NullString
	if err := row.Scan(&m.ID, &m.ThreadID, &m.Type, &m.Status, &m.Title, &m.Statement,
		&m.Importance, &m.Confidence, &m.Severity, &tagsJSON, &affectsJSON, &codeRefsJSON,
		&evidenceJSON, &m.SupersedesID, &m.SupersededByID, &m.SupersedeReason,
		&m.CreatedAt, &m.UpdatedAt, &embeddingText, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan memory item: %w", err)
	}
	return hydrateMemoryItem(&m, tagsJSON, affectsJSON, codeRefsJSON, evidenceJSON, metaJSON, embeddingText)
}

func hydrateMemoryItem(m *MemoryItem, tagsJSON, affectsJSON, codeRefsJSON, evidenceJSON, metaJSON []byte, embeddingText sql.NullString) (*MemoryItem, error) {
	var err error
	if m.Tags, err = unmarshalStrings(tagsJSON); err != nil {
		return nil, err
	}
	if m.Affects, err = unmarshalStrings(affectsJSON); err != nil {
		return nil, err
	}
	if m.CodeRefs, err = unmarshalStrings(codeRefsJSON); err != nil {
		return nil, err
	}
	if m.EvidenceTurnIDs, err = unmarshalStrings(evidenceJSON); err != nil {
		return nil, err
	}
	if m.Meta, err = unmarshalMeta(metaJSON); err != nil {
		return nil, err
	}
	if embeddingText.Valid {
		if m.Embedding, err = decodeVector(embeddingText.String); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func scanMemoryItems(rows *sql.Rows) ([]*MemoryItem, error) {
	var items []*MemoryItem
	for rows.Next() {
		m, err := scanMemoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func scanVectorCandidates(rows *sql.Rows) ([]VectorCandidate, error) {
	var out []VectorCandidate
	for rows.Next() {
		var m MemoryItem
		var tagsJSON, affectsJSON, codeRefsJSON, evidenceJSON, metaJSON []byte
		var embeddingText sql.NullString
		var distance float64
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Type, &m.Status, &m.Title, &m.Statement,
			&m.Importance, &m.Confidence, &m.Severity, &tagsJSON, &affectsJSON, &codeRefsJSON,
			&evidenceJSON, &m.SupersedesID, &m.SupersededByID, &m.SupersedeReason,
			&m.CreatedAt, &m.UpdatedAt, &embeddingText, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan memory vector candidate: %w", err)
		}
		item, err := hydrateMemoryItem(&m, tagsJSON, affectsJSON, codeRefsJSON, evidenceJSON, metaJSON, embeddingText)
		if err != nil {
			return nil, err
		}
		out = append(out, VectorCandidate{Item: item, Distance: distance})
	}
	return out, rows.Err()
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// pqStringArray renders a Go string slice as a Postgres text[] literal
// for use with = ANY($n).
func pqStringArray(values []string) string {
	out := "{"
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += `"` + escapePGArrayElement(v) + `"`
	}
	return out + "}"
}

func escapePGArrayElement(v string) string {
	escaped := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, v[i])
	}
	return string(escaped)
}
