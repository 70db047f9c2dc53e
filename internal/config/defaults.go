package config

import (
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost           = "0.0.0.0"
	DefaultServerPort           = 8080
	DefaultServerMode           = "release"
	DefaultServerReadTimeout    = 30 * time.Second
	DefaultServerWriteTimeout   = 120 * time.Second
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultServerRateLimit      = 20.0
	DefaultServerRateBurst      = 40
	DefaultSlowRequestThreshold = 3 * time.Second

	DefaultGRPCPort = 9090

	DefaultDBHost          = "localhost"
	DefaultDBPort          = 5432
	DefaultDBName          = "contactscope"
	DefaultDBUser          = "contactscope"
	DefaultDBSSLMode       = "disable"
	DefaultDBMaxOpenConns  = 20
	DefaultDBMaxIdleConns  = 5
	DefaultDBConnLifetime  = 30 * time.Minute
	DefaultDBConnIdleTime  = 5 * time.Minute
	DefaultDBStmtTimeout   = 30 * time.Second
	DefaultDBMigrationPath = "file://migrations"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisTimeout   = 3 * time.Second
	DefaultRedisTTL       = 24 * time.Hour
	DefaultRedisKeyPrefix = "cscope:"

	DefaultNeo4jURI      = "bolt://localhost:7687"
	DefaultNeo4jDatabase = "neo4j"
	DefaultNeo4jPoolSize = 20
	DefaultNeo4jTimeout  = 10 * time.Second

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaGroupID         = "contactscope-worker"
	DefaultKafkaEncoding        = "json"
	DefaultKafkaRequestTopic    = "contactscope.analysis.requested"
	DefaultKafkaCompletedTopic  = "contactscope.analysis.completed"
	DefaultKafkaDeadLetterTopic = "contactscope.analysis.dlq"
	DefaultKafkaMaxRetries      = 3
	DefaultKafkaRetryBackoff    = time.Second
	DefaultKafkaWriteTimeout    = 10 * time.Second

	DefaultOpenSearchAddress = "http://localhost:9200"
	DefaultOpenSearchIndex   = "contactscope-sessions"

	DefaultMinIOEndpoint      = "localhost:9000"
	DefaultMinIOBucket        = "contactscope"
	DefaultMinIORegion        = "us-east-1"
	DefaultMinIOPresignExpiry = 15 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "contactscope"
	DefaultMetricsPath      = "/metrics"

	DefaultAnalysisCutoff             = 5.0
	DefaultAnalysisMaxCutoff          = 15.0
	DefaultAnalysisWorkers            = 1
	DefaultAnalysisTimeout            = 2 * time.Minute
	DefaultAnalysisDisplayLimit       = 1000
	DefaultAnalysisMaxUploadBytes     = 64 << 20
	DefaultAnalysisMaxStructures      = 8
	DefaultAnalysisMaxBruteForceAtoms = 5000

	DefaultFetchBaseURL      = "https://files.rcsb.org/download/%s.pdb"
	DefaultFetchTimeout      = 30 * time.Second
	DefaultFetchRetryMax     = 3
	DefaultFetchRetryWaitMin = 500 * time.Millisecond
	DefaultFetchRetryWaitMax = 5 * time.Second
	DefaultFetchRateLimit    = 5.0
	DefaultFetchBurst        = 5
	DefaultFetchUserAgent    = "contactscope/1.0"
	DefaultFetchCacheTTL     = 7 * 24 * time.Hour
	DefaultFetchMaxBytes     = 64 << 20

	DefaultWorkerConcurrency = 2
	DefaultWorkerHealthPort  = 8081
	DefaultWorkerClaimTTL    = 10 * time.Minute
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicitly configured values are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = DefaultServerRateLimit
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = DefaultServerRateBurst
	}
	if cfg.Server.SlowThreshold == 0 {
		cfg.Server.SlowThreshold = DefaultSlowRequestThreshold
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = DefaultDBConnIdleTime
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = DefaultDBStmtTimeout
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultDBMigrationPath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = DefaultRedisTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = DefaultRedisTimeout
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = DefaultNeo4jPoolSize
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = DefaultNeo4jTimeout
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.Encoding == "" {
		cfg.Kafka.Encoding = DefaultKafkaEncoding
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequestTopic
	}
	if cfg.Kafka.CompletedTopic == "" {
		cfg.Kafka.CompletedTopic = DefaultKafkaCompletedTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultKafkaDeadLetterTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaRetryBackoff
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = DefaultMinIOPresignExpiry
	}

	// ── Log / Metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Analysis ──────────────────────────────────────────────────────────────
	if cfg.Analysis.Cutoff == 0 {
		cfg.Analysis.Cutoff = DefaultAnalysisCutoff
	}
	if cfg.Analysis.MaxCutoff == 0 {
		cfg.Analysis.MaxCutoff = math.Max(DefaultAnalysisMaxCutoff, cfg.Analysis.Cutoff)
	}
	if cfg.Analysis.MaxBruteForceAtoms == 0 {
		cfg.Analysis.MaxBruteForceAtoms = DefaultAnalysisMaxBruteForceAtoms
	}
	if cfg.Analysis.Workers == 0 {
		cfg.Analysis.Workers = DefaultAnalysisWorkers
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = DefaultAnalysisTimeout
	}
	if cfg.Analysis.DisplayLimit == 0 {
		cfg.Analysis.DisplayLimit = DefaultAnalysisDisplayLimit
	}
	if cfg.Analysis.MaxUploadBytes == 0 {
		cfg.Analysis.MaxUploadBytes = DefaultAnalysisMaxUploadBytes
	}
	if cfg.Analysis.MaxStructures == 0 {
		cfg.Analysis.MaxStructures = DefaultAnalysisMaxStructures
	}

	// ── Fetch ─────────────────────────────────────────────────────────────────
	if cfg.Fetch.BaseURL == "" {
		cfg.Fetch.BaseURL = DefaultFetchBaseURL
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}
	if cfg.Fetch.RetryMax == 0 {
		cfg.Fetch.RetryMax = DefaultFetchRetryMax
	}
	if cfg.Fetch.RetryWaitMin == 0 {
		cfg.Fetch.RetryWaitMin = DefaultFetchRetryWaitMin
	}
	if cfg.Fetch.RetryWaitMax == 0 {
		cfg.Fetch.RetryWaitMax = DefaultFetchRetryWaitMax
	}
	if cfg.Fetch.RateLimit == 0 {
		cfg.Fetch.RateLimit = DefaultFetchRateLimit
	}
	if cfg.Fetch.Burst == 0 {
		cfg.Fetch.Burst = DefaultFetchBurst
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = DefaultFetchUserAgent
	}
	if cfg.Fetch.CacheTTL == 0 {
		cfg.Fetch.CacheTTL = DefaultFetchCacheTTL
	}
	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = DefaultFetchMaxBytes
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
	if cfg.Worker.ClaimTTL == 0 {
		cfg.Worker.ClaimTTL = DefaultWorkerClaimTTL
	}
}
