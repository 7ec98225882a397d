//go:build integration

package cache

import (
	"context"
	"fmt"
	"os/exec"
	"property-distance-service/internal/adapters/repositories"
	"property-distance-service/internal/platform/db"
	"property-distance-service/internal/ports"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("docker not available")
	}
}

func startPostgres(t *testing.T) string {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "distances",
				"POSTGRES_PASSWORD": "distances",
				"POSTGRES_DB":       "distances",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://distances:distances@%s:%s/distances?sslmode=disable", host, port.Port())
}

func TestSQLDistanceStoreContract(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	conn, err := db.Open(ctx, db.Postgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, repositories.InitSchema(ctx, conn, db.Postgres))

	runStoreContract(t, func(t *testing.T) ports.DistanceStore {
		_, err := conn.ExecContext(ctx, `TRUNCATE distance_records`)
		require.NoError(t, err)
		return NewSQLDistanceStore(conn)
	})
}
