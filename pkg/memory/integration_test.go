//go:build integration

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/memory"
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

// TestUpsertMemoryItemDedupSupersedeChain exercises the end-to-end
// dedup/supersede chain: an identical statement dedupes, a changed one
// supersedes once the dedup threshold is narrowed.
func TestUpsertMemoryItemDedupSupersedeChain(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "mem-lifecycle-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)

	policy := config.DedupPolicy{
		DedupThreshold:     0.99,
		SupersedeThreshold: 0.1,
		LLMGuardMin:        0.05,
	}
	engine := memory.NewEngine(st, mediator, policy)

	payload := memory.Payload{
		Title:      "Storage choice",
		Statement:  "We will use Postgres for storage.",
		Importance: 0.4,
		Confidence: 0.8,
	}

	item1, outcome1, err := engine.UpsertMemoryItem(ctx, thread.ID, store.MemoryTypeDecision, payload, []string{"turn-1"})
	require.NoError(t, err)
	require.Equal(t, memory.OutcomeInserted, outcome1)

	item2, outcome2, err := engine.UpsertMemoryItem(ctx, thread.ID, store.MemoryTypeDecision, payload, []string{"turn-2"})
	require.NoError(t, err)
	require.Equal(t, memory.OutcomeDeduped, outcome2)
	require.Equal(t, item1.ID, item2.ID)

	changed := payload
	changed.Statement = "We decided to use MySQL instead of Postgres for storage."
	item3, outcome3, err := engine.UpsertMemoryItem(ctx, thread.ID, store.MemoryTypeDecision, changed, []string{"turn-3"})
	require.NoError(t, err)
	require.Equal(t, memory.OutcomeSuperseded, outcome3)
	require.NotEqual(t, item1.ID, item3.ID)

	old, err := st.GetMemoryItem(ctx, item1.ID)
	require.NoError(t, err)
	require.Equal(t, store.MemoryStatusSuperseded, old.Status)
	require.NotNil(t, old.SupersededByID)
	require.Equal(t, item3.ID, *old.SupersededByID)
}

func TestUpsertMemoryItemHeuristicImportanceBump(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "mem-heuristic-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)

	engine := memory.NewEngine(st, mediator, config.DedupPolicy{
		DedupThreshold:     0.9,
		SupersedeThreshold: 0.8,
		LLMGuardMin:        0.75,
	})

	payload := memory.Payload{
		Title:      "Final decision",
		Statement:  "This is the final call on the architecture.",
		Importance: 0.7,
		Tags:       []string{"security"},
		Affects:    []string{"core"},
	}

	item, outcome, err := engine.UpsertMemoryItem(ctx, thread.ID, store.MemoryTypeDecision, payload, []string{"turn-1"})
	require.NoError(t, err)
	require.Equal(t, memory.OutcomeInserted, outcome)
	require.InDelta(t, 0.95, item.Importance, 0.0001)
}

func TestOverrideScoresRejectsOutOfRange(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "mem-override-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)
	engine := memory.NewEngine(st, mediator, config.DedupPolicy{DedupThreshold: 0.9, SupersedeThreshold: 0.8, LLMGuardMin: 0.75})

	item, _, err := engine.UpsertMemoryItem(ctx, thread.ID, store.MemoryTypeAssumption, memory.Payload{
		Title:     "Assumption",
		Statement: "API stays backward compatible.",
	}, []string{"turn-1"})
	require.NoError(t, err)

	tooHigh := 1.5
	_, err = engine.OverrideScores(ctx, item.ID, &tooHigh, nil, nil, "bad input")
	require.Error(t, err)
}
