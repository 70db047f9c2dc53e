package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/config"
	pkgerrors "github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

type mockKafkaWriter struct {
	mu        sync.Mutex
	written   []kafka.Message
	writeErr  error
	closeErr  error
	closeCall int
}

func (m *mockKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closeCall++
	return m.closeErr
}

func (m *mockKafkaWriter) messages() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.written...)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(config.KafkaConfig{Brokers: []string{"localhost:9092"}}))
	assert.Error(t, ValidateConfig(config.KafkaConfig{}))
	assert.Error(t, ValidateConfig(config.KafkaConfig{Brokers: []string{"b"}, MaxRetries: -1}))
}

func TestNewProducer_RejectsEmptyBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, nil)

	err := p.Publish(context.Background(), &common.ProducerMessage{
		Topic:   "contactscope.analysis.completed",
		Key:     []byte("k"),
		Value:   []byte(`{"a":1}`),
		Headers: map[string]string{"event_type": EventAnalysisCompleted},
	})
	require.NoError(t, err)

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "contactscope.analysis.completed", msgs[0].Topic)
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(EventAnalysisCompleted)}}, msgs[0].Headers)
	assert.False(t, msgs[0].Time.IsZero())
	assert.Equal(t, int64(1), p.Sent())
}

func TestPublish_Validation(t *testing.T) {
	p := NewProducerWithWriter(&mockKafkaWriter{}, nil)
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, &common.ProducerMessage{Value: []byte("x")}))
	assert.Error(t, p.Publish(ctx, &common.ProducerMessage{Topic: "t"}))
	big := []byte(strings.Repeat("x", DefaultMaxMessageBytes+1))
	assert.Error(t, p.Publish(ctx, &common.ProducerMessage{Topic: "t", Value: big}))
}

func TestPublish_WriterFailure(t *testing.T) {
	p := NewProducerWithWriter(&mockKafkaWriter{writeErr: errors.New("leader not available")}, nil)

	err := p.Publish(context.Background(), &common.ProducerMessage{Topic: "t", Value: []byte("x")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExternalService))
	assert.Equal(t, int64(1), p.metrics.MessagesFailed.Load())
}

func TestProducerClose_Idempotent(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, nil)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closeCall)

	err := p.Publish(context.Background(), &common.ProducerMessage{Topic: "t", Value: []byte("x")})
	assert.ErrorIs(t, err, ErrProducerClosed)
}
