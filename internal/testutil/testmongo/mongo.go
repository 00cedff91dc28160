// Package testmongo runs a throwaway MongoDB for store tests.
package testmongo

import (
	"context"
	"testing"

	"github.com/chirino/ufdr-service/internal/testutil/containers"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// StartMongo starts a disposable MongoDB container and returns its connection URI.
func StartMongo(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		tb.Fatalf("start mongodb container: %v", err)
	}
	containers.TerminateOnCleanup(tb, "mongodb", container)

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("build mongodb connection string: %v", err)
	}
	return uri
}
