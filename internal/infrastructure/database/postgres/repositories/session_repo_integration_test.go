//go:build integration

// Package repositories_test runs the session repository against a real
// PostgreSQL started with testcontainers. Docker is required.
package repositories_test

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/postgres"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// startPostgres launches PostgreSQL 16, applies the migrations and returns an
// open connection.
func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "contactscope_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	log := logging.NewNopLogger()
	conn, err := postgres.NewConnection(config.DatabaseConfig{
		Host:     host,
		Port:     p,
		User:     "test",
		Password: "test",
		DBName:   "contactscope_test",
		SSLMode:  "disable",
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	dir, err := filepath.Abs(filepath.Join("..", "..", "..", "..", "..", "migrations"))
	require.NoError(t, err)
	m, err := postgres.NewMigrator(conn, "file://"+dir, log)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	return conn
}

func analysedSession(t *testing.T, created time.Time) *session.Session {
	t.Helper()
	st, _, err := structure.ParseString(
		"ATOM      1  N   ASP A  10       0.000   0.000   0.000  1.00  0.00           N\n"+
			"ATOM      2  N   LYS B  20       3.000   0.000   0.000  1.00  0.00           N\n",
		"1ABC")
	require.NoError(t, err)
	st.Accession = "1ABC"
	res, err := contact.Analyze(context.Background(), []*structure.Structure{st})
	require.NoError(t, err)
	s := session.New([]*structure.Structure{st}, res, 3*time.Millisecond)
	s.CreatedAt = created.UTC().Truncate(time.Microsecond)
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestSessionRepository_RoundTrip(t *testing.T) {
	conn := startPostgres(t)
	repo := repositories.NewSessionRepository(conn, logging.NewNopLogger())
	ctx := context.Background()

	base := time.Now()
	first := analysedSession(t, base.Add(-time.Minute))
	second := analysedSession(t, base)
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Labels, got.Labels)
	assert.Equal(t, first.Result.Interactions, got.Result.Interactions)
	assert.Equal(t, first.Result.Chains, got.Result.Chains)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	headers, total, err := repo.List(ctx, common.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, headers, 2)
	assert.Equal(t, second.ID, headers[0].ID)
	assert.Equal(t, 1, headers[0].Summary.Interactions)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.FindByID(ctx, first.ID)
	assert.True(t, session.IsNotFound(err))
}
