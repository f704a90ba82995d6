// Package firestoretest runs the Firestore emulator for tests.
package firestoretest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	Image   = "gcr.io/google.com/cloudsdktool/google-cloud-cli:emulators"
	port    = "8080/tcp"
	hostEnv = "FIRESTORE_EMULATOR_HOST"
)

var (
	mu        sync.Mutex
	container testcontainers.Container
	host      string
	startErr  error
)

// Host returns the address of a running emulator. An emulator named by
// FIRESTORE_EMULATOR_HOST is used as is; otherwise one container is started
// per test binary. The test is skipped under -short or when no emulator can
// be started.
func Host(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("firestore emulator tests skipped in short mode")
	}
	if h := os.Getenv(hostEnv); h != "" {
		return h
	}

	mu.Lock()
	defer mu.Unlock()
	if host == "" && startErr == nil {
		host, startErr = start(context.Background())
	}
	if startErr != nil {
		t.Skipf("firestore emulator unavailable: %v", startErr)
	}
	return host
}

func start(ctx context.Context) (string, error) {
	log.Println("Starting Firestore emulator container...")

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        Image,
			ExposedPorts: []string{port},
			Cmd: []string{
				"gcloud", "beta", "emulators", "firestore", "start",
				"--host-port=0.0.0.0:8080",
			},
			WaitingFor: wait.ForLog("Dev App Server is now running").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	}
	c, err := testcontainers.GenericContainer(ctx, req)
	if err != nil {
		if c != nil {
			_ = c.Terminate(ctx)
		}
		return "", fmt.Errorf("failed to start firestore emulator: %w", err)
	}

	h, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return "", err
	}
	p, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = c.Terminate(ctx)
		return "", err
	}

	container = c
	addr := fmt.Sprintf("%s:%s", h, p.Port())
	log.Printf("Firestore emulator ready at %s", addr)
	return addr, nil
}

// Terminate stops the container started by Host, if any. Call it from
// TestMain.
func Terminate() {
	mu.Lock()
	defer mu.Unlock()
	if container == nil {
		return
	}
	if err := container.Terminate(context.Background()); err != nil {
		log.Printf("Failed to terminate firestore emulator: %v", err)
	}
	container = nil
	host = ""
}

// NewClient connects to the emulator under a fresh project id, so each test
// sees empty collections. The client is closed when the test ends.
func NewClient(t *testing.T) *firestore.Client {
	t.Helper()
	h := Host(t)
	t.Setenv(hostEnv, h)

	project := "test-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	client, err := firestore.NewClient(context.Background(), project)
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
