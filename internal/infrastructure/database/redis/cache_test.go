package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ContactScope/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache Cache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	log := logging.NewNopLogger()
	s.cache = NewRedisCache(NewClientFromRedis(db, log), log, WithPrefix("test:"), WithoutJitter())
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type summary struct {
	Label        string `json:"label"`
	Interactions int    `json:"interactions"`
}

func (s *CacheTestSuite) TestGet_Hit() {
	val := summary{Label: "1ABC", Interactions: 42}
	raw, _ := json.Marshal(val)
	s.mock.ExpectGet("test:session:1").SetVal(string(raw))

	var dest summary
	s.Require().NoError(s.cache.Get(context.Background(), "session:1", &dest))
	s.Equal(val, dest)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:session:1").RedisNil()

	var dest summary
	err := s.cache.Get(context.Background(), "session:1", &dest)
	s.Equal(ErrCacheMiss, err)
	s.True(pkgerrors.IsNotFound(err))
}

func (s *CacheTestSuite) TestGet_BackendError() {
	s.mock.ExpectGet("test:session:1").SetErr(errors.New("connection reset"))

	var dest summary
	err := s.cache.Get(context.Background(), "session:1", &dest)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestGet_CorruptPayload() {
	s.mock.ExpectGet("test:session:1").SetVal("{not json")

	var dest summary
	err := s.cache.Get(context.Background(), "session:1", &dest)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestSetBytes_UsesDefaultTTL() {
	s.mock.ExpectSet("test:pdb:1ABC", []byte("ATOM"), 15*time.Minute).SetVal("OK")
	s.NoError(s.cache.SetBytes(context.Background(), "pdb:1ABC", []byte("ATOM"), 0))
}

func (s *CacheTestSuite) TestSet_EncodesJSON() {
	raw, _ := json.Marshal(summary{Label: "x"})
	s.mock.ExpectSet("test:k", raw, time.Hour).SetVal("OK")
	s.NoError(s.cache.Set(context.Background(), "k", summary{Label: "x"}, time.Hour))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:k1", "test:k2").SetVal(2)
	s.NoError(s.cache.Delete(context.Background(), "k1", "k2"))
	s.NoError(s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestExists() {
	s.mock.ExpectExists("test:k1").SetVal(1)
	ok, err := s.cache.Exists(context.Background(), "k1")
	s.NoError(err)
	s.True(ok)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func newMiniCache(t *testing.T) (*miniredis.Miniredis, *Client, Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logging.NewNopLogger()
	client := NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), log)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewRedisCache(client, log, WithPrefix("t:"))
}

func TestGetOrSet_LoadsOnceAndCaches(t *testing.T) {
	mr, _, cache := newMiniCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return summary{Label: "1ABC", Interactions: 7}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got summary
			assert.NoError(t, cache.GetOrSet(ctx, "s:1", &got, time.Minute, loader))
			assert.Equal(t, 7, got.Interactions)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
	assert.True(t, mr.Exists("t:s:1"))

	before := calls.Load()
	var got summary
	require.NoError(t, cache.GetOrSet(ctx, "s:1", &got, time.Minute, loader))
	assert.Equal(t, before, calls.Load())
}

func TestGetOrSet_LoaderErrorIsReturnedAndNotCached(t *testing.T) {
	mr, _, cache := newMiniCache(t)
	boom := pkgerrors.New(pkgerrors.CodeSessionNotFound, "no such session")

	var got summary
	err := cache.GetOrSet(context.Background(), "s:2", &got, time.Minute, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSessionNotFound))
	assert.False(t, mr.Exists("t:s:2"))
}

func TestGetOrSet_BackendDownStillLoads(t *testing.T) {
	mr, _, cache := newMiniCache(t)
	mr.Close()

	var got summary
	err := cache.GetOrSet(context.Background(), "s:3", &got, time.Minute, func(ctx context.Context) (interface{}, error) {
		return summary{Label: "fallback"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Label)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	_, client, _ := newMiniCache(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}
