// Package plans is a thin service layer over pkg/store's Plan CRUD,
// giving the dispatch façade one place to add plan-level policy
// without reaching into pkg/store directly, mirroring the shape of
// original_source/memory_mcp/services/plans.py.
package plans

import (
	"context"
	"fmt"

	"github.com/memhub/memoryd/pkg/store"
)

// Service wraps plan lifecycle operations.
type Service struct {
	store *store.Store
}

// NewService constructs a plans Service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) Create(ctx context.Context, name string, meta map[string]any) (*store.Plan, error) {
	p, err := s.store.CreatePlan(ctx, name, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Plan, error) {
	return s.store.GetPlan(ctx, id)
}

func (s *Service) List(ctx context.Context, includeArchived bool) ([]*store.Plan, error) {
	return s.store.ListPlans(ctx, includeArchived)
}

func (s *Service) Rename(ctx context.Context, id, name string) (*store.Plan, error) {
	return s.store.RenamePlan(ctx, id, name)
}

func (s *Service) Archive(ctx context.Context, id string, archived bool) (*store.Plan, error) {
	return s.store.ArchivePlan(ctx, id, archived)
}

func (s *Service) Touch(ctx context.Context, id string) (*store.Plan, error) {
	return s.store.TouchPlan(ctx, id)
}
