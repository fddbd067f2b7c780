package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/memhub/memoryd/pkg/apperr"
)

// CreatePlan inserts a new plan.
func (s *Store) CreatePlan(ctx context.Context, name string, meta map[string]any) (*Plan, error) {
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan meta: %w", err)
	}
	p := &Plan{ID: newID(), Name: name, Status: "active", Meta: meta}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO plans (plan_id, name, status, meta)
		VALUES ($1, $2, 'active', $3)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, metaJSON)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return p, nil
}

// GetPlan loads a plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT plan_id, name, status, created_at, updated_at, meta
		FROM plans WHERE plan_id = $1`, id)
	return scanPlan(row)
}

// FindOrCreatePlanByName returns the plan with the given name, creating
// it if absent. Used to resolve shared.import's sentinel "imported"
// plan per DESIGN.md's Open Question decision.
func (s *Store) FindOrCreatePlanByName(ctx context.Context, name string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT plan_id, name, status, created_at, updated_at, meta
		FROM plans WHERE name = $1 ORDER BY created_at ASC LIMIT 1`, name)
	p, err := scanPlan(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return s.CreatePlan(ctx, name, map[string]any{})
}

// ListPlans lists plans, optionally including archived ones.
func (s *Store) ListPlans(ctx context.Context, includeArchived bool) ([]*Plan, error) {
	query := `SELECT plan_id, name, status, created_at, updated_at, meta FROM plans`
	if !includeArchived {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlanRows(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// RenamePlan updates a plan's name.
func (s *Store) RenamePlan(ctx context.Context, id, name string) (*Plan, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET name = $1, updated_at = now() WHERE plan_id = $2`, name, id)
	if err != nil {
		return nil, fmt.Errorf("failed to rename plan: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetPlan(ctx, id)
}

// ArchivePlan sets a plan's status to archived or active.
func (s *Store) ArchivePlan(ctx context.Context, id string, archived bool) (*Plan, error) {
	status := "active"
	if archived {
		status = "archived"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = $1, updated_at = now() WHERE plan_id = $2`, status, id)
	if err != nil {
		return nil, fmt.Errorf("failed to archive plan: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetPlan(ctx, id)
}

// TouchPlan bumps a plan's updated_at without changing other fields.
func (s *Store) TouchPlan(ctx context.Context, id string) (*Plan, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET updated_at = now() WHERE plan_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to touch plan: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetPlan(ctx, id)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var p Plan
	var metaJSON []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan meta: %w", err)
	}
	p.Meta = meta
	return &p, nil
}

func scanPlanRows(rows *sql.Rows) (*Plan, error) {
	return scanPlan(rows)
}
