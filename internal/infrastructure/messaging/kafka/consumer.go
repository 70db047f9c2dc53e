package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// Dead-letter headers.
const (
	HeaderOriginalTopic = "original_topic"
	HeaderError         = "error_message"
	HeaderRetries       = "retries"
)

const maxRetryBackoff = 30 * time.Second

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageRecorder counts consumed messages by outcome.
type MessageRecorder interface {
	RecordMessage(topic, status string)
}

// ConsumerMetrics holds consumer counters.
type ConsumerMetrics struct {
	MessagesConsumed     atomic.Int64
	MessagesProcessed    atomic.Int64
	MessagesFailed       atomic.Int64
	MessagesRetried      atomic.Int64
	MessagesDeadLettered atomic.Int64
}

// Consumer reads a consumer group's topics and dispatches each message to
// the handler subscribed for its topic. A handler error is retried with
// exponential backoff; once retries run out the message goes to the
// dead-letter topic and the offset is committed.
type Consumer struct {
	reader          ReaderInterface
	groupID         string
	maxRetries      int
	retryBackoff    time.Duration
	deadLetterTopic string
	deadLetter      Publisher
	recorder        MessageRecorder
	logger          logging.Logger

	handlers map[string]common.MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *ConsumerMetrics
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes exhausted messages through p.
func WithDeadLetter(p Publisher) ConsumerOption {
	return func(c *Consumer) { c.deadLetter = p }
}

// WithRecorder reports message outcomes to r.
func WithRecorder(r MessageRecorder) ConsumerOption {
	return func(c *Consumer) { c.recorder = r }
}

// NewConsumer joins cfg.GroupID on the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, logger logging.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group_id required")
	}
	if len(topics) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       50 * 1024 * 1024,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
		Dialer:         &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	return NewConsumerWithReader(reader, cfg, logger, opts...), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(reader ReaderInterface, cfg config.KafkaConfig, logger logging.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Consumer{
		reader:          reader,
		groupID:         cfg.GroupID,
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		deadLetterTopic: cfg.DeadLetterTopic,
		logger:          logger,
		handlers:        make(map[string]common.MessageHandler),
		metrics:         &ConsumerMetrics{},
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers the handler for topic, replacing any earlier one.
func (c *Consumer) Subscribe(topic string, handler common.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed to topic", logging.String("topic", topic))
}

// Start launches the consume loop. It returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("kafka consumer started", logging.String("group", c.groupID))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.metrics.MessagesConsumed.Add(1)

		msg := fromKafkaMessage(m)
		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
			c.commit(ctx, m)
			continue
		}

		status, err := c.processMessage(ctx, msg, handler)
		if err != nil {
			// Cancelled mid-retry: leave the offset for redelivery.
			return
		}
		c.record(m.Topic, status)
		c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.Error("commit failed",
			logging.String("topic", m.Topic),
			logging.Int64("offset", m.Offset),
			logging.Err(err))
	}
}

func (c *Consumer) record(topic, status string) {
	if c.recorder != nil {
		c.recorder.RecordMessage(topic, status)
	}
}

// processMessage returns the outcome ("ok", "dead_lettered" or "dropped").
// The error is non-nil only when ctx ended during a retry wait.
func (c *Consumer) processMessage(ctx context.Context, msg *common.Message, handler common.MessageHandler) (string, error) {
	err := handler(ctx, msg)
	if err == nil {
		c.metrics.MessagesProcessed.Add(1)
		return "ok", nil
	}

	backoff := c.retryBackoff
	for msg.Retries < c.maxRetries {
		c.metrics.MessagesRetried.Add(1)
		c.logger.Warn("message handler failed, retrying",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset),
			logging.Int("attempt", msg.Retries+1),
			logging.Err(err))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		msg.Retries++

		if err = handler(ctx, msg); err == nil {
			c.metrics.MessagesProcessed.Add(1)
			return "ok", nil
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}

	c.metrics.MessagesFailed.Add(1)
	c.logger.Error("message processing failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))

	if c.deadLetter == nil || c.deadLetterTopic == "" {
		return "dropped", nil
	}
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderError] = err.Error()
	headers[HeaderRetries] = strconv.Itoa(msg.Retries)

	dl := &common.ProducerMessage{
		Topic:   c.deadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
	if dlErr := c.deadLetter.Publish(ctx, dl); dlErr != nil {
		c.logger.Error("failed to send to dead letter topic", logging.Err(dlErr))
		return "dropped", nil
	}
	c.metrics.MessagesDeadLettered.Add(1)
	return "dead_lettered", nil
}

func fromKafkaMessage(m kafka.Message) *common.Message {
	msg := &common.Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// Processed returns the number of messages a handler accepted.
func (c *Consumer) Processed() int64 { return c.metrics.MessagesProcessed.Load() }

// Close stops the loop, waits for the in-flight message and closes the
// reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	c.logger.Info("kafka consumer closed",
		logging.Int64("consumed", c.metrics.MessagesConsumed.Load()),
		logging.Int64("dead_lettered", c.metrics.MessagesDeadLettered.Load()))
	return err
}
