//go:build integration

package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/retention"
	"github.com/memhub/memoryd/pkg/store"
)

func TestCleanupDeletesOldTurnsButRespectsDisabledMemorySweep(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "retention-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	old := time.Now().AddDate(-2, 0, 0)
	_, err = st.InsertTurn(ctx, &store.Turn{
		ThreadID: thread.ID,
		Role:     "user",
		Text:     "an ancient turn",
		Ts:       old,
		Meta:     map[string]any{},
	})
	require.NoError(t, err)

	_, err = st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:  thread.ID,
		Type:      store.MemoryTypeDecision,
		Status:    store.MemoryStatusActive,
		Title:     "a decision",
		Statement: "a decision",
		Meta:      map[string]any{},
	})
	require.NoError(t, err)

	engine := retention.NewEngine(st, config.RetentionPolicy{
		RetentionDaysTurns:  30,
		RetentionDaysMemory: 0,
	})
	require.NoError(t, engine.Cleanup(ctx))

	remainingTurns, err := st.RecentTurns(ctx, thread.ID, 10)
	require.NoError(t, err)
	require.Empty(t, remainingTurns)

	remainingItems, err := st.ListByTypeStatus(ctx, thread.ID, store.MemoryTypeDecision, store.MemoryStatusActive)
	require.NoError(t, err)
	require.Len(t, remainingItems, 1)
}
