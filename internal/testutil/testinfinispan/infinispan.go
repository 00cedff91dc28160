// Package testinfinispan runs a throwaway Infinispan with its RESP connector
// enabled so the redis client can talk to it.
package testinfinispan

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/testutil/containers"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Infinispan holds connection details for a running container.
type Infinispan struct {
	Host     string // host:port
	Username string
	Password string
}

// StartInfinispan starts a disposable Infinispan server and waits for RESP.
func StartInfinispan(tb testing.TB) Infinispan {
	tb.Helper()

	srv := Infinispan{Username: "admin", Password: "password"}
	_, srv.Host = containers.Start(tb, containers.Service{
		Name:  "infinispan",
		Image: "quay.io/infinispan/server:15.2",
		Port:  "11222",
		Env:   map[string]string{"USER": srv.Username, "PASS": srv.Password},
		Wait: wait.ForAll(
			wait.ForListeningPort("11222/tcp"),
			wait.ForLog("Started connector Resp"),
		).WithDeadline(90 * time.Second),
	})

	// Infinispan rejects the RESP3 HELLO handshake.
	client := goredis.NewClient(&goredis.Options{
		Addr:     srv.Host,
		Username: srv.Username,
		Password: srv.Password,
		Protocol: 2,
	})
	defer func() { _ = client.Close() }()
	err := containers.Poll(60*time.Second, 5*time.Second, time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		tb.Fatalf("infinispan RESP endpoint: %v", err)
	}
	return srv
}
