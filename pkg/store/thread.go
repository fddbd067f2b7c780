package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/memhub/memoryd/pkg/apperr"
)

// CreateThread inserts a new thread under plan_id, after verifying the
// plan exists.
func (s *Store) CreateThread(ctx context.Context, planID string, meta map[string]any) (*Thread, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal thread meta: %w", err)
	}
	t := &Thread{ID: newID(), PlanID: planID, Meta: meta}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO threads (thread_id, plan_id, meta)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		t.ID, t.PlanID, metaJSON)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return t, nil
}

// GetThread loads a thread by id.
func (s *Store) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, plan_id, created_at, updated_at, meta
		FROM threads WHERE thread_id = $1`, id)
	return scanThread(row)
}

// TouchThread bumps a thread's updated_at, used by turn ingestion.
func (s *Store) TouchThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads SET updated_at = now() WHERE thread_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return requireAffected(res)
}

func scanThread(row rowScanner) (*Thread, error) {
	var t Thread
	var metaJSON []byte
	if err := row.Scan(&t.ID, &t.PlanID, &t.CreatedAt, &t.UpdatedAt, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan thread: %w", err)
	}
	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread meta: %w", err)
	}
	t.Meta = meta
	return &t, nil
}
