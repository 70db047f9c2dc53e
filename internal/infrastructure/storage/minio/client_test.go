package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/testutil"
	pkgerrors "github.com/turtacn/ContactScope/pkg/errors"
)

// MockObjectAPI implements ObjectAPI.
type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucket, opts).Error(0)
}

func (m *MockObjectAPI) SetBucketLifecycle(ctx context.Context, bucket string, cfg *lifecycle.Configuration) error {
	return m.Called(ctx, bucket, cfg).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, key, r, size, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, minio.ObjectInfo, error) {
	args := m.Called(ctx, bucket, key)
	body, _ := args.Get(0).(io.ReadCloser)
	return body, args.Get(1).(minio.ObjectInfo), args.Error(2)
}

func (m *MockObjectAPI) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucket, key, opts).Error(0)
}

func (m *MockObjectAPI) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.Called(ctx, bucket, opts).Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockObjectAPI) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucket, key, expiry, params)
	u, _ := args.Get(0).(*url.URL)
	return u, args.Error(1)
}

type ClientTestSuite struct {
	suite.Suite
	api *MockObjectAPI
	log *testutil.MockLogger
	cfg config.MinIOConfig
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.log = testutil.NewMockLogger()
	s.cfg = config.MinIOConfig{Bucket: "contactscope", Region: "us-east-1"}
}

func (s *ClientTestSuite) TestDefaults() {
	c := NewClientWithAPI(s.api, s.cfg, nil)
	s.Equal(15*time.Minute, c.presignExpiry)
	s.Equal("contactscope", c.Bucket())
}

func (s *ClientTestSuite) TestEnsureBucket_CreatesMissingBucket() {
	ctx := context.Background()
	s.api.On("BucketExists", ctx, "contactscope").Return(false, nil)
	s.api.On("MakeBucket", ctx, "contactscope", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
	s.api.On("SetBucketLifecycle", ctx, "contactscope", mock.MatchedBy(func(cfg *lifecycle.Configuration) bool {
		return len(cfg.Rules) == 1 &&
			cfg.Rules[0].RuleFilter.Prefix == exportsPrefix &&
			int(cfg.Rules[0].Expiration.Days) == ExportRetentionDays
	})).Return(nil)

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.EnsureBucket(ctx))
	s.True(s.log.HasMessage("info", "created bucket"))
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestEnsureBucket_LifecycleFailureOnlyWarns() {
	ctx := context.Background()
	s.api.On("BucketExists", ctx, "contactscope").Return(true, nil)
	s.api.On("SetBucketLifecycle", ctx, "contactscope", mock.Anything).Return(errors.New("not implemented"))

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.EnsureBucket(ctx))
	s.True(s.log.HasMessage("warn", "failed to set export lifecycle rule"))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestEnsureBucket_Unreachable() {
	s.api.On("BucketExists", mock.Anything, "contactscope").Return(false, errors.New("dial tcp"))

	err := NewClientWithAPI(s.api, s.cfg, s.log).EnsureBucket(context.Background())
	s.Require().Error(err)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestHealthCheck() {
	s.api.On("BucketExists", mock.Anything, "contactscope").Return(true, nil).Once()
	s.api.On("BucketExists", mock.Anything, "contactscope").Return(false, nil).Once()

	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.NoError(c.HealthCheck(context.Background()))
	s.Error(c.HealthCheck(context.Background()))
}

func (s *ClientTestSuite) TestClose_RejectsFurtherCalls() {
	c := NewClientWithAPI(s.api, s.cfg, s.log)
	s.Require().NoError(c.Close())

	err := c.HealthCheck(context.Background())
	s.ErrorIs(err, ErrClientClosed)
	s.api.AssertNotCalled(s.T(), "BucketExists", mock.Anything, mock.Anything)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
