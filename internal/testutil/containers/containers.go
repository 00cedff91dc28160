// Package containers starts disposable backing services for integration tests.
package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Service describes a single-port container.
type Service struct {
	Name  string // used in failure messages
	Image string
	Port  string // container port, e.g. "6379"
	Env   map[string]string
	// Wait defaults to the port listening within a minute.
	Wait wait.Strategy
}

// Start runs svc and terminates it when the test ends. It returns the mapped
// host:port of svc.Port.
func Start(tb testing.TB, svc Service) (testcontainers.Container, string) {
	tb.Helper()

	port := svc.Port + "/tcp"
	strategy := svc.Wait
	if strategy == nil {
		strategy = wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(60 * time.Second)
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        svc.Image,
			ExposedPorts: []string{port},
			Env:          svc.Env,
			WaitingFor:   strategy,
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start %s container: %v", svc.Name, err)
	}
	TerminateOnCleanup(tb, svc.Name, container)
	return container, Endpoint(tb, svc.Name, container, svc.Port)
}

// TerminateOnCleanup stops container when the test ends.
func TerminateOnCleanup(tb testing.TB, name string, container testcontainers.Container) {
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate %s container: %v", name, err)
		}
	})
}

// Endpoint returns the host:port mapped to the container's port.
func Endpoint(tb testing.TB, name string, container testcontainers.Container, port string) string {
	tb.Helper()
	ctx := context.Background()
	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("get %s host: %v", name, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		tb.Fatalf("get %s mapped port: %v", name, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// Poll calls check until it succeeds or timeout passes. Each attempt gets its
// own attemptTimeout.
func Poll(timeout, attemptTimeout, interval time.Duration, check func(ctx context.Context) error) error {
	deadline := time.Now().Add(timeout)
	attempts := 0
	var lastErr error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		lastErr = check(ctx)
		cancel()
		attempts++
		if lastErr == nil {
			return nil
		}
		time.Sleep(interval)
	}
	if lastErr == nil {
		lastErr = context.DeadlineExceeded
	}
	return fmt.Errorf("not ready after %d attempts: %w", attempts, lastErr)
}
