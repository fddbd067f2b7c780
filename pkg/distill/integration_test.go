//go:build integration

package distill_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/distill"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/memory"
	"github.com/memhub/memoryd/pkg/turns"
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

func TestDistillExtractWritesDecisionToMemory(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "distill-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)

	turnsEngine := turns.NewEngine(st, mediator, config.Settings{})
	memoryEngine := memory.NewEngine(st, mediator, config.DedupPolicy{
		DedupThreshold:     0.9,
		SupersedeThreshold: 0.8,
		LLMGuardMin:        0.75,
	})
	distillEngine := distill.NewEngine(turnsEngine, mediator, memoryEngine)

	ext := "t1"
	turn, err := turnsEngine.IngestTurn(ctx, thread.ID, "user", "we made a decision to use postgres for storage", time.Time{}, nil, nil, &ext, false)
	require.NoError(t, err)

	counters, extraction, err := distillEngine.DistillExtract(ctx, thread.ID, turn.ID, 4, true)
	require.NoError(t, err)
	require.Equal(t, 1, counters.Inserted)
	require.Len(t, extraction["decisions"], 1)
}
