// Package testutil provides helpers for integration tests, including a
// disposable Postgres container managed over the Docker API.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"

	"github.com/pyqvault/pyqvault/internal/config"
)

const (
	pgImage       = "postgres:16-alpine"
	pgPort        = nat.Port("5432/tcp")
	pgUser        = "pyqvault"
	pgPassword    = "pyqvault"
	pgDatabase    = "pyqvault_test"
	containerName = "pyqvault-test-postgres"
)

// RequireDocker skips the test unless integration tests are enabled.
func RequireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("PYQVAULT_INTEGRATION") != "1" {
		t.Skip("set PYQVAULT_INTEGRATION=1 to run integration tests")
	}
}

// Postgres is a disposable Postgres container for integration tests.
type Postgres struct {
	cli         *client.Client
	containerID string
	hostPort    int
}

// StartPostgres pulls the Postgres image, starts a container on a free
// host port and waits until the database accepts connections.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker is not running: %w", err)
	}

	if err := ensureImage(ctx, cli); err != nil {
		cli.Close()
		return nil, err
	}

	hostPort, err := FindFreePort()
	if err != nil {
		cli.Close()
		return nil, err
	}

	containerConfig := &container.Config{
		Image: pgImage,
		Env: []string{
			"POSTGRES_USER=" + pgUser,
			"POSTGRES_PASSWORD=" + pgPassword,
			"POSTGRES_DB=" + pgDatabase,
		},
		Labels:       map[string]string{"pyqvault-test": "true"},
		ExposedPorts: nat.PortSet{pgPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			pgPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", hostPort)},
			},
		},
		AutoRemove: true,
	}

	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil,
		fmt.Sprintf("%s-%d", containerName, hostPort))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	pg := &Postgres{cli: cli, containerID: resp.ID, hostPort: hostPort}
	if err := pg.waitForReady(ctx, 60*time.Second); err != nil {
		_ = pg.Stop(ctx)
		return nil, err
	}
	return pg, nil
}

// Config returns database settings pointing at the container.
func (p *Postgres) Config() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     p.hostPort,
		User:     pgUser,
		Password: pgPassword,
		Name:     pgDatabase,
		SSLMode:  "disable",
	}
}

// Stop removes the container and closes the Docker client.
func (p *Postgres) Stop(ctx context.Context) error {
	err := p.cli.ContainerRemove(ctx, p.containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	p.cli.Close()
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// waitForReady polls the database until it accepts queries. Postgres
// restarts once during init, so a single successful ping is not enough.
func (p *Postgres) waitForReady(ctx context.Context, timeout time.Duration) error {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := p.Config()
	return retry.Do(
		func() error {
			db, err := sql.Open("postgres", cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()
			var one int
			return db.QueryRowContext(deadline, "SELECT 1").Scan(&one)
		},
		retry.Context(deadline),
		retry.Attempts(0),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// ensureImage pulls the Postgres image if it is not present locally.
func ensureImage(ctx context.Context, cli *client.Client) error {
	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == pgImage {
				return nil
			}
		}
	}

	reader, err := cli.ImagePull(ctx, pgImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", pgImage, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}
