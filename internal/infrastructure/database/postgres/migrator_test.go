package postgres

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/testutil"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Up() error         { return m.Called().Error(0) }
func (m *mockRunner) Steps(n int) error { return m.Called(n).Error(0) }
func (m *mockRunner) Force(v int) error { return m.Called(v).Error(0) }

func (m *mockRunner) Close() (error, error) {
	args := m.Called()
	return args.Error(0), args.Error(1)
}

func (m *mockRunner) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func newTestMigrator() (*Migrator, *mockRunner, *testutil.MockLogger) {
	r := new(mockRunner)
	log := testutil.NewMockLogger()
	return &Migrator{runner: r, logger: log}, r, log
}

func TestMigrator_Up(t *testing.T) {
	m, r, log := newTestMigrator()
	r.On("Up").Return(nil).Once()
	r.On("Version").Return(uint(1), false, nil).Once()

	require.NoError(t, m.Up())
	assert.True(t, log.HasMessage("info", "database migrations applied"))
	r.AssertExpectations(t)
}

func TestMigrator_Up_NoChange(t *testing.T) {
	m, r, _ := newTestMigrator()
	r.On("Up").Return(migrate.ErrNoChange).Once()
	r.On("Version").Return(uint(1), false, nil).Once()

	assert.NoError(t, m.Up())
}

func TestMigrator_Up_Failure(t *testing.T) {
	m, r, _ := newTestMigrator()
	r.On("Up").Return(errors.New("syntax error")).Once()
	r.On("Version").Return(uint(1), true, nil).Once()

	err := m.Up()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dirty true")
	assert.Contains(t, err.Error(), "syntax error")
}

func TestMigrator_Down(t *testing.T) {
	m, r, _ := newTestMigrator()

	assert.Error(t, m.Down(0))
	assert.Error(t, m.Down(-1))

	r.On("Steps", -2).Return(nil).Once()
	assert.NoError(t, m.Down(2))

	r.On("Steps", -1).Return(migrate.ErrNoChange).Once()
	err := m.Down(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrations to roll back")
	r.AssertExpectations(t)
}

func TestMigrator_Status(t *testing.T) {
	m, r, _ := newTestMigrator()

	r.On("Version").Return(uint(0), false, migrate.ErrNilVersion).Once()
	v, dirty, err := m.Status()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	r.On("Version").Return(uint(0), false, errors.New("boom")).Once()
	_, _, err = m.Status()
	assert.Error(t, err)
}

func TestMigrator_ForceAndClose(t *testing.T) {
	m, r, log := newTestMigrator()
	r.On("Force", 1).Return(nil).Once()
	r.On("Close").Return(nil, nil).Once()

	require.NoError(t, m.Force(1))
	assert.True(t, log.HasMessage("warn", "migration version forced"))
	assert.NoError(t, m.Close())
	r.AssertExpectations(t)
}

func TestMigrationFiles_ArePaired(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)

	var names []string
	for n := range ups {
		names = append(names, n)
		assert.True(t, downs[n], "missing down migration for %s", n)
	}
	sort.Strings(names)
	assert.True(t, strings.HasPrefix(names[0], "000001_"))
}
