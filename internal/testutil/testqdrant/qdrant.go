// Package testqdrant runs a throwaway Qdrant for vector store tests.
package testqdrant

import (
	"testing"

	"github.com/chirino/ufdr-service/internal/testutil/containers"
)

// StartQdrant starts a disposable Qdrant container and returns the gRPC host:port.
func StartQdrant(tb testing.TB) string {
	tb.Helper()
	_, hostPort := containers.Start(tb, containers.Service{Name: "qdrant", Image: "qdrant/qdrant:latest", Port: "6334"})
	return hostPort
}
