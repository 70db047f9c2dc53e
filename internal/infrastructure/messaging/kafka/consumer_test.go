package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/testutil"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// queueReader hands out queued messages, then blocks until ctx ends.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *queueReader) Close() error {
	r.closed = true
	return nil
}

func (r *queueReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*common.ProducerMessage
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, msg *common.ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) RecordMessage(_, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[status]++
}

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		GroupID:         "g",
		DeadLetterTopic: "dlq",
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
	}
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{Brokers: []string{"b"}}, []string{"t"}, nil)
	assert.Error(t, err)
	_, err = NewConsumer(testKafkaConfig(), nil, nil)
	assert.Error(t, err)
}

func TestConsumer_DispatchesAndCommits(t *testing.T) {
	reader := &queueReader{queue: []kafka.Message{
		{Topic: "req", Value: []byte("one"), Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t1")}}},
		{Topic: "other", Value: []byte("skip")},
	}}
	rec := &countingRecorder{}
	c := NewConsumerWithReader(reader, testKafkaConfig(), testutil.NewMockLogger(), WithRecorder(rec))

	got := make(chan *common.Message, 1)
	c.Subscribe("req", func(_ context.Context, msg *common.Message) error {
		got <- msg
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	select {
	case msg := <-got:
		assert.Equal(t, "one", string(msg.Value))
		assert.Equal(t, "t1", msg.Headers["trace_id"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for handler")
	}
	assert.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
	assert.Equal(t, int64(1), c.Processed())
	rec.mu.Lock()
	assert.Equal(t, 1, rec.outcomes["ok"])
	rec.mu.Unlock()
}

func TestProcessMessage_RetrySuccess(t *testing.T) {
	c := NewConsumerWithReader(&queueReader{}, testKafkaConfig(), nil)

	attempts := 0
	status, err := c.processMessage(context.Background(), &common.Message{}, func(context.Context, *common.Message) error {
		attempts++
		if attempts < 2 {
			return errors.New("fail")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", status)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), c.metrics.MessagesRetried.Load())
}

func TestProcessMessage_ExhaustedGoesToDeadLetter(t *testing.T) {
	dlq := &capturePublisher{}
	log := testutil.NewMockLogger()
	c := NewConsumerWithReader(&queueReader{}, testKafkaConfig(), log, WithDeadLetter(dlq))

	msg := &common.Message{Topic: "req", Key: []byte("k"), Value: []byte("v"), Headers: map[string]string{"a": "b"}}
	attempts := 0
	status, err := c.processMessage(context.Background(), msg, func(context.Context, *common.Message) error {
		attempts++
		return errors.New("source unavailable")
	})
	require.NoError(t, err)
	assert.Equal(t, "dead_lettered", status)
	assert.Equal(t, 3, attempts)

	require.Len(t, dlq.msgs, 1)
	dl := dlq.msgs[0]
	assert.Equal(t, "dlq", dl.Topic)
	assert.Equal(t, "req", dl.Headers[HeaderOriginalTopic])
	assert.Equal(t, "source unavailable", dl.Headers[HeaderError])
	assert.Equal(t, "2", dl.Headers[HeaderRetries])
	assert.Equal(t, "b", dl.Headers["a"])
	assert.NotContains(t, msg.Headers, HeaderOriginalTopic)
	assert.True(t, log.HasMessage("error", "message processing failed after retries"))
}

func TestProcessMessage_DroppedWithoutDeadLetter(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.MaxRetries = 0
	c := NewConsumerWithReader(&queueReader{}, cfg, nil)

	status, err := c.processMessage(context.Background(), &common.Message{}, func(context.Context, *common.Message) error {
		return errors.New("bad")
	})
	require.NoError(t, err)
	assert.Equal(t, "dropped", status)
}

func TestProcessMessage_CancelledDuringBackoff(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.RetryBackoff = time.Hour
	c := NewConsumerWithReader(&queueReader{}, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.processMessage(ctx, &common.Message{}, func(context.Context, *common.Message) error {
		return errors.New("bad")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
