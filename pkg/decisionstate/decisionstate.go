// Package decisionstate implements retrieve.decision_state: five
// parallel active-item listings by type, grounded on
// original_source/memory_mcp/services/decision_state.py.
package decisionstate

import (
	"context"
	"fmt"

	"github.com/memhub/memoryd/pkg/store"
)

// Result is retrieve.decision_state's return value.
type Result struct {
	Decisions         []*store.MemoryItem
	Constraints       []*store.MemoryItem
	AvoidListMistakes []*store.MemoryItem
	Assumptions       []*store.MemoryItem
	OpenQuestions     []*store.MemoryItem
}

// Engine serves the decision-state snapshot.
type Engine struct {
	store *store.Store
}

// NewEngine constructs a decision-state Engine.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// DecisionState lists every active item in thread, grouped by type.
func (e *Engine) DecisionState(ctx context.Context, threadID string) (*Result, error) {
	decisions, err := e.store.ListByTypeStatus(ctx, threadID, store.MemoryTypeDecision, store.MemoryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	constraints, err := e.store.ListByTypeStatus(ctx, threadID, store.MemoryTypeConstraint, store.MemoryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list constraints: %w", err)
	}
	mistakes, err := e.store.ListByTypeStatus(ctx, threadID, store.MemoryTypeMistake, store.MemoryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list mistakes: %w", err)
	}
	assumptions, err := e.store.ListByTypeStatus(ctx, threadID, store.MemoryTypeAssumption, store.MemoryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list assumptions: %w", err)
	}
	openQuestions, err := e.store.ListByTypeStatus(ctx, threadID, store.MemoryTypeOpenQuestion, store.MemoryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list open questions: %w", err)
	}

	return &Result{
		Decisions:         decisions,
		Constraints:       constraints,
		AvoidListMistakes: mistakes,
		Assumptions:       assumptions,
		OpenQuestions:     openQuestions,
	}, nil
}
