//go:build integration

package retrieval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/retrieval"
	"github.com/memhub/memoryd/pkg/store"
)

func fakeLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		FakeMode:       true,
		EmbeddingDim:   8,
		ChatModel:      "fake-chat",
		EmbeddingModel: "fake-embed",
		TimeoutS:       5,
		MaxRetries:     2,
		BreakerMaxFailures: 3,
		BreakerTTLS:        1,
		MaxConcurrency:     4,
	}
}

func TestRetrieveContextHybridPacksAndFlagsLowConfidence(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "retrieval-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)

	vec, err := mediator.Embed(ctx, []string{"Use Postgres for storage"})
	require.NoError(t, err)

	_, err = st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:   thread.ID,
		Type:       store.MemoryTypeDecision,
		Status:     store.MemoryStatusActive,
		Title:      "Storage choice",
		Statement:  "Use Postgres for storage",
		Importance: 0.8,
		Embedding:  vec[0],
		Meta:       map[string]any{},
	})
	require.NoError(t, err)

	engine := retrieval.NewEngine(st, mediator, false)
	result, err := engine.RetrieveContext(ctx, retrieval.Request{
		ThreadID:    thread.ID,
		Query:       "What storage did we pick?",
		Mode:        retrieval.ModeFast,
		Scope:       retrieval.ScopeDistilledOnly,
		TopK:        8,
		TokenBudget: 500,
		RecencyBias: 1,
	})
	require.NoError(t, err)
	require.True(t, result.LowConfidence)
	require.LessOrEqual(t, result.EstTokens, 500)
}
