//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/store"
)

func seedThread(t *testing.T, st *store.Store) *store.Thread {
	t.Helper()
	ctx := context.Background()
	plan, err := st.CreatePlan(ctx, "integration-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)
	return thread
}

func TestPlanThreadTurnLifecycle(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	thread := seedThread(t, st)

	ext := "ext-1"
	turn, err := st.InsertTurn(ctx, &store.Turn{
		ThreadID:       thread.ID,
		Role:           "user",
		Text:           "we decided to use postgres",
		ExternalTurnID: &ext,
	})
	require.NoError(t, err)
	require.NotEmpty(t, turn.ID)

	found, err := st.FindTurnByExternalID(ctx, thread.ID, ext)
	require.NoError(t, err)
	require.Equal(t, turn.ID, found.ID)

	recent, err := st.RecentTurns(ctx, thread.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestMemoryItemInsertAndVectorSearch(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()
	thread := seedThread(t, st)

	vec := make([]float32, 8)
	vec[0] = 1.0
	item, err := st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:   thread.ID,
		Type:       store.MemoryTypeDecision,
		Status:     store.MemoryStatusActive,
		Title:      "Use Postgres",
		Statement:  "We will use Postgres for storage.",
		Importance: 0.5,
		Confidence: 0.8,
		Embedding:  vec,
		Meta:       map[string]any{},
	})
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)

	candidates, err := st.VectorSearchMemory(ctx, thread.ID, store.MemoryTypeDecision, vec, 5)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	require.Equal(t, item.ID, candidates[0].Item.ID)
	require.InDelta(t, 0, candidates[0].Distance, 0.0001)

	kw, err := st.KeywordSearchMemory(ctx, thread.ID, store.MemoryTypeDecision, "postgres storage", 5)
	require.NoError(t, err)
	require.NotEmpty(t, kw)
}

func TestMemoryItemDeprecateAndOverride(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()
	thread := seedThread(t, st)

	item, err := st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:   thread.ID,
		Type:       store.MemoryTypeConstraint,
		Status:     store.MemoryStatusActive,
		Title:      "Budget limit",
		Statement:  "Stay under 10k tokens.",
		Importance: 0.3,
		Meta:       map[string]any{},
	})
	require.NoError(t, err)

	deprecated, err := st.Deprecate(ctx, item.ID, "no longer applies")
	require.NoError(t, err)
	require.Equal(t, store.MemoryStatusDeprecated, deprecated.Status)
	require.Equal(t, "no longer applies", deprecated.Meta["deprecate_reason"])

	newImportance := 0.9
	overridden, err := st.OverrideScores(ctx, item.ID, &newImportance, nil, nil, "manual bump")
	require.NoError(t, err)
	require.InDelta(t, 0.9, overridden.Importance, 0.0001)
}

func TestJobQueueClaimAndBackoff(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	job, err := st.EnqueueJob(ctx, store.JobTypeEmbedTurn, map[string]any{"turn_id": "t1"}, time.Now())
	require.NoError(t, err)

	claimed, err := st.FetchNextJob(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, store.JobStatusRunning, claimed.Status)

	require.NoError(t, st.FailJob(ctx, claimed.ID, errors.New("transient failure"), 5))

	got, err := st.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobStatusPending, got.Status)
	require.Equal(t, 1, got.Attempts)
}

func TestSharedPackageExpiry(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	sp, err := st.CreateSharedPackage(ctx, map[string]any{"foo": "bar"}, "sig", time.Now().Add(-time.Hour), map[string]any{})
	require.NoError(t, err)

	_, err = st.GetSharedPackage(ctx, sp.ID)
	require.Error(t, err)
}

// TestInsertTurnCollapsesConcurrentExternalIDConflict drives two
// concurrent InsertTurn calls for the same (thread, external_turn_id)
// past the unique index that backs idempotent ingestion, asserting
// the loser gets the winner's row back instead of a raw constraint
// error.
func TestInsertTurnCollapsesConcurrentExternalIDConflict(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()
	thread := seedThread(t, st)

	ext := "ext-race"
	n := 5
	results := make([]*store.Turn, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = st.InsertTurn(ctx, &store.Turn{
				ThreadID:       thread.ID,
				Role:           "user",
				Text:           "concurrent turn",
				ExternalTurnID: &ext,
			})
		}(i)
	}
	wg.Wait()

	var firstID string
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		if firstID == "" {
			firstID = results[i].ID
		}
		require.Equal(t, firstID, results[i].ID)
	}

	recent, err := st.RecentTurns(ctx, thread.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
