// Package testdb provides a shared Postgres+pgvector testcontainer for
// integration tests across the module, the way tarsy's test/util
// database helper backs every package's _test.go files with one
// container per test run rather than one per test.
package testdb

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/memhub/memoryd/pkg/database"
	"github.com/memhub/memoryd/pkg/store"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// Open starts (once per test binary) a shared pgvector-enabled
// postgres container, applies the service's migrations, and returns a
// ready-to-use Store. Each call gets its own dedicated database so
// tests don't see each other's rows.
func Open(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	base := getOrCreateSharedContainer(t)
	dbName := uniqueDatabaseName(t)

	admin, err := stdsql.Open("pgx", base)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	connStr := withDatabase(base, dbName)
	client, err := database.NewClient(ctx, database.DefaultConfig(connStr), database.VectorIndexOptions{
		IndexType:          "ivfflat",
		IVFFlatLists:       10,
		HNSWM:              16,
		HNSWEfConstruction: 64,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return store.New(client.DB())
}

func getOrCreateSharedContainer(t *testing.T) string {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"pgvector/pgvector:pg16",
			postgres.WithDatabase("memory_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}
		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})
	require.NoError(t, containerErr, "failed to set up shared test container")
	return sharedConnStr
}

func uniqueDatabaseName(t *testing.T) string {
	sanitized := make([]byte, 0, len(t.Name()))
	for _, r := range []byte(t.Name()) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sanitized = append(sanitized, r)
		case r >= 'A' && r <= 'Z':
			sanitized = append(sanitized, r+('a'-'A'))
		default:
			sanitized = append(sanitized, '_')
		}
	}
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	return fmt.Sprintf("test_%s_%d", sanitized, time.Now().UnixNano())
}

func withDatabase(connStr, dbName string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return connStr
	}
	u.Path = "/" + dbName
	return u.String()
}
