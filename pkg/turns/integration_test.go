//go:build integration

package turns_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/config"
	"github.com/memhub/memoryd/pkg/llmmediator"
	"github.com/memhub/memoryd/pkg/store"
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

func TestIngestTurnIdempotentAndSyncEmbed(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "turns-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)

	cfg := config.Settings{IngestEmbedSync: true, AutoDistillOnIngest: false}
	engine := turns.NewEngine(st, mediator, cfg)

	ext := "ext-42"
	turn1, err := engine.IngestTurn(ctx, thread.ID, "user", "we decided to use postgres", time.Time{}, nil, nil, &ext, true)
	require.NoError(t, err)
	require.NotEmpty(t, turn1.Embedding)

	turn2, err := engine.IngestTurn(ctx, thread.ID, "user", "a different message", time.Time{}, nil, nil, &ext, true)
	require.NoError(t, err)
	require.Equal(t, turn1.ID, turn2.ID)
}

func TestIngestTurnAsyncEnqueuesEmbedJob(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "turns-async-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	mediator, err := llmmediator.New(fakeLLMConfig())
	require.NoError(t, err)

	cfg := config.Settings{IngestEmbedSync: false, AutoDistillOnIngest: true}
	engine := turns.NewEngine(st, mediator, cfg)

	turn, err := engine.IngestTurn(ctx, thread.ID, "user", "hello", time.Time{}, nil, nil, nil, true)
	require.NoError(t, err)
	require.Nil(t, turn.Embedding)

	job, err := st.FetchNextJob(ctx, []string{store.JobTypeEmbedTurn})
	require.NoError(t, err)
	require.Equal(t, store.JobTypeEmbedTurn, job.Type)
}

