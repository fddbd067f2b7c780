//go:build integration

package shared_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memhub/memoryd/internal/testdb"
	"github.com/memhub/memoryd/pkg/shared"
	"github.com/memhub/memoryd/pkg/store"
)

func TestExportImportRoundTrip(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "shared-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	_, err = st.InsertMemoryItem(ctx, &store.MemoryItem{
		ThreadID:   thread.ID,
		Type:       store.MemoryTypeDecision,
		Status:     store.MemoryStatusActive,
		Title:      "Use Postgres",
		Statement:  "We will use Postgres for storage.",
		Importance: 0.8,
		Confidence: 0.9,
		Tags:       []string{"storage"},
		Meta:       map[string]any{},
	})
	require.NoError(t, err)

	engine := shared.NewEngine(st, "test-secret", 60)

	exportResult, err := engine.Export(ctx, thread.ID, []string{store.MemoryTypeDecision}, false, nil)
	require.NoError(t, err)
	require.NotEmpty(t, exportResult.PackageID)
	require.NotEmpty(t, exportResult.Signature)

	importResult, err := engine.Import(ctx, exportResult.Payload, exportResult.Signature)
	require.NoError(t, err)
	require.Equal(t, 1, importResult.Inserted)
	require.NotEqual(t, thread.ID, importResult.ThreadID)
}

func TestImportRejectsBadSignature(t *testing.T) {
	st := testdb.Open(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "shared-bad-sig-plan-"+t.Name(), map[string]any{})
	require.NoError(t, err)
	thread, err := st.CreateThread(ctx, plan.ID, map[string]any{})
	require.NoError(t, err)

	engine := shared.NewEngine(st, "test-secret", 60)

	exportResult, err := engine.Export(ctx, thread.ID, []string{store.MemoryTypeDecision}, false, nil)
	require.NoError(t, err)

	_, err = engine.Import(ctx, exportResult.Payload, "not-the-real-signature")
	require.Error(t, err)
}
