package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	s, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0.9, s.Dedup.DedupThreshold)
	require.Equal(t, 0.8, s.Dedup.SupersedeThreshold)
	require.Equal(t, 0.75, s.Dedup.LLMGuardMin)
	require.Equal(t, 8, s.Retrieval.FastTopK)
	require.Equal(t, 20, s.Retrieval.DeepTopK)
	require.Equal(t, 800, s.Retrieval.TokenBudgetFast)
	require.Equal(t, 2400, s.Retrieval.TokenBudgetDeep)
	require.Equal(t, 3, s.Jobs.MaxAttempts)
	require.False(t, s.LLM.FakeMode)
}

func TestLoadRejectsInvalidEmbeddingDim(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "0")
	_, err := Load()
	require.Error(t, err)
}
