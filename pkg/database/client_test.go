package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient starts a pgvector-enabled Postgres container, runs this
// package's own NewClient (migrations + GIN/vector indexes included),
// and returns a ready-to-use Client.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, DefaultConfig(connStr), VectorIndexOptions{
		IndexType:          "ivfflat",
		IVFFlatLists:       10,
		HNSWM:              16,
		HNSWEfConstruction: 64,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.DB().PingContext(ctx)
	require.NoError(t, err)

	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestFullTextSearch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	planID := uuid.NewString()
	_, err := client.DB().ExecContext(ctx,
		`INSERT INTO plans (plan_id, name) VALUES ($1, $2)`, planID, "fts-plan")
	require.NoError(t, err)

	threadID := uuid.NewString()
	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO threads (thread_id, plan_id) VALUES ($1, $2)`, threadID, planID)
	require.NoError(t, err)

	turn1 := uuid.NewString()
	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO turns (turn_id, thread_id, role, text) VALUES ($1, $2, $3, $4)`,
		turn1, threadID, "user", "Critical error in production cluster with pod failures")
	require.NoError(t, err)

	turn2 := uuid.NewString()
	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO turns (turn_id, thread_id, role, text) VALUES ($1, $2, $3, $4)`,
		turn2, threadID, "user", "Warning: high memory usage detected")
	require.NoError(t, err)

	rows, err := client.DB().QueryContext(ctx,
		`SELECT turn_id FROM turns WHERE tsv @@ to_tsquery('english', $1)`,
		"error & production",
	)
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var turnID string
		require.NoError(t, rows.Scan(&turnID))
		results = append(results, turnID)
	}
	assert.Len(t, results, 1)
	assert.Equal(t, turn1, results[0])

	rows2, err := client.DB().QueryContext(ctx,
		`SELECT turn_id FROM turns WHERE tsv @@ to_tsquery('english', $1)`,
		"memory",
	)
	require.NoError(t, err)
	defer rows2.Close()

	results2 := []string{}
	for rows2.Next() {
		var turnID string
		require.NoError(t, rows2.Scan(&turnID))
		results2 = append(results2, turnID)
	}
	assert.Len(t, results2, 1)
	assert.Equal(t, turn2, results2[0])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("postgres://test")
	assert.Equal(t, "postgres://test", cfg.URL)
	assert.Greater(t, cfg.MaxOpenConns, 0)
	assert.Greater(t, cfg.MaxIdleConns, 0)
	assert.GreaterOrEqual(t, cfg.MaxOpenConns, cfg.MaxIdleConns)
	assert.Greater(t, cfg.ConnMaxLifetime, time.Duration(0))
	assert.Greater(t, cfg.ConnMaxIdleTime, time.Duration(0))
}
