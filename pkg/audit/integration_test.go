//go:build integration

package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/audit"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/store"
)

func fakeLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		FakeMode:           true,
		EmbeddingDim:       8,
		ChatModel:          "fake-chat",
		EmbeddingModel:     "fake-embed",
		TimeoutS:           5,
		MaxRetries:         2,
		BreakerMaxFailures: 3,
		BreakerTTLS:        1,
		MaxConcurrency:     4,
	}
}

func TestAuditConsistencyShallowOnlyPopulatesStale(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "audit-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	item, err := st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:  thread.ID,
		Type:      store.MemoryTypeDecision,
		Status:    store.MemoryStatusSuperseded,
		Title:     "Old storage choice",
		Statement: "We will use MySQL for storage.",
		Meta:      map[string]any{},
	})
	require.NoError(t, err)
	_ = item

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)
	engine := audit.NewEngine(st, mediator)

	result, err := engine.AuditConsistency(ctx, thread.ID, "old storage choice", false)
	require.NoError(t, err)
	require.NotEmpty(t, result.StaleReferences)
	require.Empty(t, result.Violations)
}

func TestAuditConsistencyDeepReturnsResult(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "audit-deep-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)
	engine := audit.NewEngine(st, mediator)

	result, err := engine.AuditConsistency(ctx, thread.ID, "a plan with no matches", true)
	require.NoError(t, err)
	require.NotNil(t, result)
}
