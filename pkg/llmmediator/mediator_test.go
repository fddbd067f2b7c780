package llmmediator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/pkg/config"
)

func fakeConfig() config.LLMConfig {
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

func TestMediatorEmbedDeterministic(t *testing.T) {
	m, err := New(fakeConfig())
	require.NoError(t, err)

	v1, err := m.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := m.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1[0], 8)
}

func TestMediatorEmbedDifferentTextsDiffer(t *testing.T) {
	m, err := New(fakeConfig())
	require.NoError(t, err)

	vecs, err := m.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestMediatorChatJSONCompareRelation(t *testing.T) {
	m, err := New(fakeConfig())
	require.NoError(t, err)

	resp, err := m.ChatJSON(context.Background(), []Message{
		{Role: "system", Content: "You compare two memory statements. Return JSON with keys: relation and reason."},
		{Role: "user", Content: "old vs new"},
	})
	require.NoError(t, err)
	assert.Equal(t, "same", resp["relation"])
}

func TestMediatorChatJSONRerank(t *testing.T) {
	m, err := New(fakeConfig())
	require.NoError(t, err)

	resp, err := m.ChatJSON(context.Background(), []Message{
		{Role: "system", Content: "You are ranking context chunks."},
		{Role: "user", Content: "pick the best 8"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{}, resp["ids"])
}

func TestMediatorChatJSONDistillSeedsDecision(t *testing.T) {
	m, err := New(fakeConfig())
	require.NoError(t, err)

	resp, err := m.ChatJSON(context.Background(), []Message{
		{Role: "system", Content: "You are extracting distilled memory."},
		{Role: "user", Content: "We made a decision to use postgres."},
	})
	require.NoError(t, err)
	decisions, ok := resp["decisions"].([]any)
	require.True(t, ok)
	require.Len(t, decisions, 1)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	b := NewCircuitBreaker(2, 20*time.Millisecond)
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.Allow())
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	b := NewCircuitBreaker(2, time.Second)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.True(t, b.Allow())
}
