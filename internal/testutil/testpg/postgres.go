// Package testpg runs a throwaway Postgres with the pgvector extension available.
package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/testutil/containers"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres starts a disposable pgvector enabled Postgres and returns its DSN.
func StartPostgres(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "pgvector/pgvector:pg18",
		postgres.WithDatabase("ufdr"),
		postgres.WithUsername("ufdr"),
		postgres.WithPassword("ufdr"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				// The server restarts once after init.
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		tb.Fatalf("start postgres container: %v", err)
	}
	containers.TerminateOnCleanup(tb, "postgres", container)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil || dsn == "" {
		tb.Fatalf("build postgres connection string: %v", err)
	}
	err = containers.Poll(20*time.Second, 2*time.Second, 250*time.Millisecond, func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close(ctx) }()
		return conn.Ping(ctx)
	})
	if err != nil {
		tb.Fatalf("postgres is not accepting connections: %v", err)
	}
	return dsn
}
