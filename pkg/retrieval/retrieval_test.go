package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyWeightDecaysWithAge(t *testing.T) {
	now := recencyWeight(time.Now(), 1)
	old := recencyWeight(time.Now().Add(-30*24*time.Hour), 1)
	assert.Greater(t, now, old)
}

func TestRecencyWeightFloorsAtZero(t *testing.T) {
	w := recencyWeight(time.Now().Add(-10000*24*time.Hour), 1)
	assert.Equal(t, 0.0, w)
}

func TestPackUnderBudgetSkipsOversizedAndKeepsLaterFits(t *testing.T) {
	candidates := []*candidate{
		{id: "a", text: stringOfLen(400)}, // ~100 tokens
		{id: "b", text: "short"},
		{id: "c", text: "tiny"},
	}
	chunks, total := packUnderBudget(candidates, 10)

	var ids []string
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	assert.NotContains(t, ids, "a")
	assert.Contains(t, ids, "b")
	assert.Contains(t, ids, "c")
	assert.Greater(t, total, 0)
}

func TestPackUnderBudgetZeroBudgetReturnsNothing(t *testing.T) {
	candidates := []*candidate{{id: "a", text: "hello world"}}
	chunks, total := packUnderBudget(candidates, 0)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, total)
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
