package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/application/analysis"
	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
)

const pairPDB = "ATOM      1  N   ASP A   1       0.000   0.000   0.000  1.00 10.00           N\n" +
	"ATOM      2  NZ  LYS B   2       3.000   0.000   0.000  1.00 10.00           N\n"

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestOpen_NothingEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = false

	infra, err := Open(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	defer infra.Close()

	assert.Nil(t, infra.Postgres)
	assert.Nil(t, infra.Redis)
	assert.Nil(t, infra.Producer)
	assert.Nil(t, infra.Metrics)
	assert.Empty(t, infra.HealthCheckers())
	assert.Empty(t, infra.enabled())
}

func TestOpen_MetricsOnly(t *testing.T) {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true

	infra, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer infra.Close()

	require.NotNil(t, infra.Collector)
	require.NotNil(t, infra.Metrics)
	assert.Equal(t, []string{"metrics"}, infra.enabled())
}

func TestOpen_RedisFailureClosesAndReturnsError(t *testing.T) {
	cfg := defaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	infra, err := Open(context.Background(), cfg, logging.NewNopLogger())
	assert.Error(t, err)
	assert.Nil(t, infra)
	assert.Contains(t, err.Error(), "redis")
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	infra, err := Open(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	defer infra.Close()

	checks := infra.HealthCheckers()
	require.Len(t, checks, 1)
	assert.Equal(t, "redis", checks[0].Name())
	assert.NoError(t, checks[0].Check(context.Background()))

	svc, err := infra.Service(cfg, "test")
	require.NoError(t, err)
	sess, err := svc.Analyze(context.Background(), &analysis.AnalyzeInput{
		Uploads: []analysis.Upload{{Label: "complex", Content: []byte(pairPDB)}},
	})
	require.NoError(t, err)

	got, err := svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Result.Summary.Interactions)
	assert.NotEmpty(t, mr.Keys(), "session should be cached")
}

func TestService_MemoryRepository(t *testing.T) {
	cfg := defaultConfig()
	infra, err := Open(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	defer infra.Close()

	svc, err := infra.Service(cfg, "test")
	require.NoError(t, err)

	sess, err := svc.Analyze(context.Background(), &analysis.AnalyzeInput{
		Uploads: []analysis.Upload{{Label: "complex", Content: []byte(pairPDB)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Result.Summary.Inter)

	got, err := svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestService_BadEncoding(t *testing.T) {
	cfg := defaultConfig()
	cfg.Kafka.Encoding = "avro"
	infra := &Infrastructure{logger: logging.NewNopLogger()}

	_, err := infra.Service(cfg, "test")
	assert.Error(t, err)
}

func TestClose_Nil(t *testing.T) {
	var infra *Infrastructure
	assert.NotPanics(t, infra.Close)
}
