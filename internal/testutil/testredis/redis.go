// Package testredis runs a throwaway Redis for cache tests.
package testredis

import (
	"testing"

	"github.com/chirino/ufdr-service/internal/testutil/containers"
)

// StartRedis starts a disposable Redis container and returns a redis:// URL.
func StartRedis(tb testing.TB) string {
	tb.Helper()
	_, hostPort := containers.Start(tb, containers.Service{Name: "redis", Image: "redis:7", Port: "6379"})
	return "redis://" + hostPort
}
