package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/testutil"
	pkgerrors "github.com/turtacn/ContactScope/pkg/errors"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return m.Called(ctx, config).Get(0).(internalSession)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// fakeSession runs work against tx and records Close.
type fakeSession struct {
	tx     Transaction
	err    error
	closed int
}

func (s *fakeSession) ExecuteRead(_ context.Context, work TransactionWork) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return work(s.tx)
}

func (s *fakeSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return s.ExecuteRead(ctx, work)
}

func (s *fakeSession) Close(context.Context) error {
	s.closed++
	return nil
}

type fakeTx struct {
	records []*neo4j.Record
	cypher  []string
}

func (t *fakeTx) Run(_ context.Context, cypher string, _ map[string]any) (Result, error) {
	t.cypher = append(t.cypher, cypher)
	return &sliceResult{records: t.records}, nil
}

type sliceResult struct {
	records []*neo4j.Record
	pos     int
	err     error
}

func (r *sliceResult) Next(context.Context) bool {
	if r.pos < len(r.records) {
		r.pos++
		return true
	}
	return false
}

func (r *sliceResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *sliceResult) Err() error            { return r.err }

func (r *sliceResult) Consume(context.Context) (neo4j.ResultSummary, error) { return nil, nil }

func TestDriver_HealthCheck(t *testing.T) {
	md := new(MockDriver)
	tx := &fakeTx{records: []*neo4j.Record{{Keys: []string{"health"}, Values: []any{int64(1)}}}}
	sess := &fakeSession{tx: tx}
	md.On("VerifyConnectivity", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, neo4j.SessionConfig{DatabaseName: "graph", AccessMode: neo4j.AccessModeRead}).Return(sess)

	d := newDriver(md, "graph", testutil.NewMockLogger())
	require.NoError(t, d.HealthCheck(context.Background()))
	assert.Equal(t, []string{"RETURN 1 AS health"}, tx.cypher)
	assert.Equal(t, 1, sess.closed)
	md.AssertExpectations(t)
}

func TestDriver_HealthCheck_Unreachable(t *testing.T) {
	md := new(MockDriver)
	md.On("VerifyConnectivity", mock.Anything).Return(errors.New("refused"))

	d := newDriver(md, "", testutil.NewMockLogger())
	err := d.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestDriver_ExecuteWrite_DefaultDatabaseAndError(t *testing.T) {
	md := new(MockDriver)
	sess := &fakeSession{err: errors.New("deadlock")}
	md.On("NewSession", mock.Anything, neo4j.SessionConfig{DatabaseName: "neo4j", AccessMode: neo4j.AccessModeWrite}).Return(sess)
	log := testutil.NewMockLogger()

	d := newDriver(md, "", log)
	_, err := d.ExecuteWrite(context.Background(), func(Transaction) (any, error) { return nil, nil })
	require.Error(t, err)
	assert.True(t, log.HasMessage("error", "neo4j write transaction failed"))
	assert.Equal(t, 1, sess.closed)
}

func TestDriver_CloseOnce(t *testing.T) {
	md := new(MockDriver)
	md.On("Close", mock.Anything).Return(nil).Once()

	d := newDriver(md, "", testutil.NewMockLogger())
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
	md.AssertExpectations(t)
}

func TestCollectRecords(t *testing.T) {
	res := &sliceResult{records: []*neo4j.Record{
		{Keys: []string{"n"}, Values: []any{int64(1)}},
		{Keys: []string{"n"}, Values: []any{int64(2)}},
	}}
	got, err := CollectRecords(context.Background(), res, func(r *neo4j.Record) (int64, error) {
		v, _ := r.Get("n")
		return v.(int64), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got)

	_, err = CollectRecords(context.Background(), &sliceResult{err: errors.New("broken")}, func(*neo4j.Record) (int64, error) {
		return 0, nil
	})
	assert.Error(t, err)
}
