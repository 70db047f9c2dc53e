package analysis

import (
	"context"
	"time"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// Fetcher downloads structure text by accession code. rcsb.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, accession string) ([]byte, error)
}

// Cache is the subset of redis.Cache the service uses for session records.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ArtefactStore keeps raw inputs and rendered exports. minio.ArtefactStore
// satisfies it.
type ArtefactStore interface {
	PutRaw(ctx context.Context, id common.ID, label string, data []byte) (string, error)
	PutArtefact(ctx context.Context, name, contentType string, body []byte) (string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
	DeleteSession(ctx context.Context, id common.ID) (int, error)
}

// EventPublisher sends encoded events. kafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
}

// SessionIndexer maintains the search index.
type SessionIndexer interface {
	IndexSession(ctx context.Context, h session.Header) error
	DeleteSession(ctx context.Context, id common.ID) error
}

// SessionSearcher answers free-text session queries.
type SessionSearcher interface {
	SearchSessions(ctx context.Context, q string, page common.Pagination) ([]session.Header, int64, error)
}

// GraphProjector writes and reads the chain contact graph.
type GraphProjector interface {
	Project(ctx context.Context, id common.ID, res *contact.AnalysisResult) error
	Partners(ctx context.Context, id common.ID, k contact.ChainKey) ([]repositories.Partner, error)
	DeleteSession(ctx context.Context, id common.ID) error
}

// Metrics records service-level measurements. prometheus.AppMetrics
// satisfies it, including as a nil pointer.
type Metrics interface {
	RecordAnalysis(status string, d time.Duration, res *contact.AnalysisResult)
	RecordAtomsParsed(n int)
	RecordCacheAccess(hit bool)
	RecordSideEffectFailure(component string)
}

type nopMetrics struct{}

func (nopMetrics) RecordAnalysis(string, time.Duration, *contact.AnalysisResult) {}
func (nopMetrics) RecordAtomsParsed(int)                                         {}
func (nopMetrics) RecordCacheAccess(bool)                                        {}
func (nopMetrics) RecordSideEffectFailure(string)                                {}
