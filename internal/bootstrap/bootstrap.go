// Package bootstrap opens the configured backing services and assembles the
// analysis service shared by the API server and the worker. Integrations
// whose Enabled flag is off are skipped and the service runs without them;
// sessions then live in a bounded in-process store.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/ContactScope/internal/application/analysis"
	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/turtacn/ContactScope/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/ContactScope/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/redis"
	"github.com/turtacn/ContactScope/internal/infrastructure/fetch/rcsb"
	"github.com/turtacn/ContactScope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ContactScope/internal/infrastructure/search/opensearch"
	"github.com/turtacn/ContactScope/internal/infrastructure/storage/minio"
)

// MemorySessionCapacity bounds the in-process session store used when
// PostgreSQL is disabled.
const MemorySessionCapacity = 256

const setupTimeout = 30 * time.Second

// HealthChecker is one named dependency probe.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Infrastructure holds the opened clients. Nil fields are disabled.
type Infrastructure struct {
	Postgres   *postgres.Connection
	Redis      *redis.Client
	Neo4j      *neo4j.Driver
	MinIO      *minio.Client
	OpenSearch *opensearch.Client
	Producer   *kafka.Producer

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	logger logging.Logger
}

// Open connects every enabled integration. On failure everything opened so
// far is closed again.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (infra *Infrastructure, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra = &Infrastructure{logger: logger}
	defer func() {
		if err != nil {
			infra.Close()
			infra = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	if cfg.Metrics.Enabled {
		infra.Collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		infra.Metrics = prometheus.NewAppMetrics(infra.Collector)
	}

	if cfg.Database.Enabled {
		if infra.Postgres, err = postgres.NewConnection(cfg.Database, logger.Named("postgres")); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err = migrate(infra.Postgres, cfg.Database.MigrationPath, logger); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Redis.Enabled {
		if infra.Redis, err = redis.NewClient(cfg.Redis, logger.Named("redis")); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	if cfg.Neo4j.Enabled {
		if infra.Neo4j, err = neo4j.NewDriver(cfg.Neo4j, logger.Named("neo4j")); err != nil {
			return nil, fmt.Errorf("neo4j: %w", err)
		}
	}

	if cfg.MinIO.Enabled {
		if infra.MinIO, err = minio.NewClient(ctx, cfg.MinIO, logger.Named("minio")); err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
	}

	if cfg.OpenSearch.Enabled {
		if infra.OpenSearch, err = opensearch.NewClient(ctx, cfg.OpenSearch, logger.Named("opensearch")); err != nil {
			return nil, fmt.Errorf("opensearch: %w", err)
		}
		if err = opensearch.NewIndexer(infra.OpenSearch, "", logger).EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("opensearch: %w", err)
		}
	}

	if cfg.Kafka.Enabled {
		ensureTopics(ctx, cfg.Kafka, logger)
		if infra.Producer, err = kafka.NewProducer(cfg.Kafka, logger.Named("kafka")); err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
	}

	logger.Info("infrastructure ready", logging.Strings("enabled", infra.enabled()))
	return infra, nil
}

func migrate(conn *postgres.Connection, path string, logger logging.Logger) error {
	m, err := postgres.NewMigrator(conn, path, logger)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// ensureTopics is best effort; brokers with auto-creation or locked-down ACLs
// still work.
func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) {
	if len(cfg.Brokers) == 0 {
		return
	}
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		logger.Warn("kafka topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.Topics(cfg)); err != nil {
		logger.Warn("failed to ensure kafka topics", logging.Err(err))
	}
}

func (i *Infrastructure) enabled() []string {
	var names []string
	for _, c := range i.HealthCheckers() {
		names = append(names, c.Name())
	}
	if i.Producer != nil {
		names = append(names, "kafka")
	}
	if i.Metrics != nil {
		names = append(names, "metrics")
	}
	return names
}

// Service builds the analysis service over the open integrations. source is
// the producer name stamped on published events.
func (i *Infrastructure) Service(cfg *config.Config, source string) (analysis.Service, error) {
	logger := i.logger

	fetchOpts := []rcsb.Option{rcsb.WithMaxBytes(cfg.Fetch.MaxBytes)}
	if i.Redis != nil {
		fetchOpts = append(fetchOpts, rcsb.WithCache(i.cache(cfg), cfg.Fetch.CacheTTL))
	}
	if i.Metrics != nil {
		fetchOpts = append(fetchOpts, rcsb.WithMetrics(i.Metrics))
	}

	deps := analysis.Dependencies{
		Fetcher: rcsb.NewClient(cfg.Fetch, logger, fetchOpts...),
		Logger:  logger,
	}
	if i.Metrics != nil {
		deps.Metrics = i.Metrics
	}
	if i.Postgres != nil {
		deps.Repository = pgrepo.NewSessionRepository(i.Postgres, logger)
	} else {
		deps.Repository = session.NewMemoryRepository(MemorySessionCapacity)
	}
	if i.Redis != nil {
		deps.Cache = i.cache(cfg)
	}
	if i.MinIO != nil {
		deps.Artefacts = minio.NewArtefactStore(i.MinIO, logger)
	}
	if i.OpenSearch != nil {
		deps.Indexer = opensearch.NewIndexer(i.OpenSearch, "", logger)
		deps.Searcher = opensearch.NewSearcher(i.OpenSearch, logger)
	}
	if i.Neo4j != nil {
		deps.Graph = neo4jrepo.NewContactGraphRepository(i.Neo4j, logger)
	}
	if i.Producer != nil {
		deps.Publisher = i.Producer
	}

	codec, err := kafka.NewCodec(cfg.Kafka.Encoding)
	if err != nil {
		return nil, err
	}
	return analysis.NewService(deps, analysis.Options{
		Analysis:       cfg.Analysis,
		CacheTTL:       cfg.Redis.DefaultTTL,
		CompletedTopic: cfg.Kafka.CompletedTopic,
		Codec:          codec,
		Source:         source,
	})
}

func (i *Infrastructure) cache(cfg *config.Config) redis.Cache {
	return redis.NewRedisCache(i.Redis, i.logger,
		redis.WithPrefix(cfg.Redis.KeyPrefix),
		redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
}

// HealthCheckers returns a probe per open store.
func (i *Infrastructure) HealthCheckers() []HealthChecker {
	var out []HealthChecker
	if i.Postgres != nil {
		out = append(out, check("postgres", i.Postgres.HealthCheck))
	}
	if i.Redis != nil {
		out = append(out, check("redis", i.Redis.Ping))
	}
	if i.Neo4j != nil {
		out = append(out, check("neo4j", i.Neo4j.HealthCheck))
	}
	if i.MinIO != nil {
		out = append(out, check("minio", i.MinIO.HealthCheck))
	}
	if i.OpenSearch != nil {
		out = append(out, check("opensearch", i.OpenSearch.HealthCheck))
	}
	return out
}

// Close releases every open client, producer first and database last.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	var closers []namedCloser
	add := func(name string, fn func() error) {
		closers = append(closers, namedCloser{name, fn})
	}
	if i.Producer != nil {
		add("kafka", i.Producer.Close)
	}
	if i.OpenSearch != nil {
		add("opensearch", i.OpenSearch.Close)
	}
	if i.MinIO != nil {
		add("minio", i.MinIO.Close)
	}
	if i.Neo4j != nil {
		add("neo4j", i.Neo4j.Close)
	}
	if i.Redis != nil {
		add("redis", i.Redis.Close)
	}
	if i.Postgres != nil {
		add("postgres", i.Postgres.Close)
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			i.logger.Warn("close failed", logging.String("component", c.name), logging.Err(err))
		}
	}
}

type namedCloser struct {
	name string
	fn   func() error
}

type namedCheck struct {
	name string
	fn   func(context.Context) error
}

func check(name string, fn func(context.Context) error) HealthChecker {
	return namedCheck{name: name, fn: fn}
}

func (c namedCheck) Name() string                    { return c.name }
func (c namedCheck) Check(ctx context.Context) error { return c.fn(ctx) }
