//go:build integration

package decisionstate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/decisionstate"
	"github.com/memhub/memoryd/pkg/store"
)

func TestDecisionStateGroupsByType(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "decisionstate-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	seed := func(typ, title string) {
		_, err := st.InsertMemoryItem(ctx, &store.MemoryItem{
			ThreadID:  thread.ID,
			Type:      typ,
			Status:    store.MemoryStatusActive,
			Title:     title,
			Statement: title,
			Meta:      map[string]any{},
		})
		require.NoError(t, err)
	}
	seed(store.MemoryTypeDecision, "Use Postgres")
	seed(store.MemoryTypeConstraint, "Must run offline")
	seed(store.MemoryTypeMistake, "Forgot to index")
	seed(store.MemoryTypeAssumption, "Single tenant")
	seed(store.MemoryTypeOpenQuestion, "Which region?")

	// Superseded item should not appear.
	_, err = st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:  thread.ID,
		Type:      store.MemoryTypeDecision,
		Status:    store.MemoryStatusSuperseded,
		Title:     "Use MySQL",
		Statement: "Use MySQL",
		Meta:      map[string]any{},
	})
	require.NoError(t, err)

	engine := decisionstate.NewEngine(st)
	result, err := engine.DecisionState(ctx, thread.ID)
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	require.Equal(t, "Use Postgres", result.Decisions[0].Title)
	require.Len(t, result.Constraints, 1)
	require.Len(t, result.AvoidListMistakes, 1)
	require.Len(t, result.Assumptions, 1)
	require.Len(t, result.OpenQuestions, 1)
}
