package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// Event types.
const (
	EventAnalysisRequested = "analysis.requested"
	EventAnalysisCompleted = "analysis.completed"
)

// Encodings and the content-type header that marks them.
const (
	EncodingJSON     = "json"
	EncodingProtobuf = "protobuf"

	HeaderContentType   = "content-type"
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"

	SchemaVersion = "v1"
)

// EventEnvelope wraps every event this service emits.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AnalysisCompletedPayload summarises a finished session.
type AnalysisCompletedPayload struct {
	SessionID         string    `json:"session_id"`
	Labels            []string  `json:"labels"`
	Accessions        []string  `json:"accessions,omitempty"`
	Cutoff            float64   `json:"cutoff"`
	Structures        int       `json:"structures"`
	Atoms             int       `json:"atoms"`
	Interactions      int       `json:"interactions"`
	Intra             int       `json:"intra"`
	Inter             int       `json:"inter"`
	InterfaceResidues int       `json:"interface_residues"`
	DurationMs        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

// AnalysisRequest asks the worker to analyse remote structures. Labels, when
// given, pair up with accessions by position.
type AnalysisRequest struct {
	Accessions []string `json:"accessions"`
	Labels     []string `json:"labels,omitempty"`
	Cutoff     float64  `json:"cutoff,omitempty"`
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType, source string, payload any) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An empty payload leaves
// target untouched.
func (e *EventEnvelope) DecodePayload(target any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// Codec turns envelopes into messages and back using one wire encoding.
type Codec struct {
	encoding string
}

// NewCodec accepts "json" (default when empty) or "protobuf".
func NewCodec(encoding string) (Codec, error) {
	switch encoding {
	case "", EncodingJSON:
		return Codec{encoding: EncodingJSON}, nil
	case EncodingProtobuf:
		return Codec{encoding: EncodingProtobuf}, nil
	default:
		return Codec{}, errors.Newf(errors.ErrCodeValidation, "unknown kafka encoding %q", encoding)
	}
}

// Encoding names the codec's wire format.
func (c Codec) Encoding() string { return c.encoding }

// Encode builds the message for topic. The protobuf form is a
// google.protobuf.Struct mirroring the JSON envelope.
func (c Codec) Encode(topic string, e *EventEnvelope) (*common.ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	contentType := ContentTypeJSON
	if c.encoding == EncodingProtobuf {
		if val, err = jsonToStruct(val); err != nil {
			return nil, err
		}
		contentType = ContentTypeProtobuf
	}
	headers := map[string]string{
		"event_type":      e.EventType,
		"source_service":  e.Source,
		"schema_version":  e.SchemaVersion,
		HeaderContentType: contentType,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &common.ProducerMessage{
		Topic:     topic,
		Key:       []byte(e.EventID),
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

func jsonToStruct(data []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode envelope")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to build protobuf struct")
	}
	out, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal protobuf struct")
	}
	return out, nil
}

// DecodeEnvelope reads an envelope in whichever encoding the content-type
// header names; JSON when the header is absent.
func DecodeEnvelope(msg *common.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	data := msg.Value
	if msg.Headers[HeaderContentType] == ContentTypeProtobuf {
		var s structpb.Struct
		if err := proto.Unmarshal(data, &s); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal protobuf envelope")
		}
		var err error
		if data, err = json.Marshal(s.AsMap()); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to convert protobuf envelope")
		}
	}
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// DecodeAnalysisRequest accepts either a bare request object or one wrapped
// in an envelope.
func DecodeAnalysisRequest(msg *common.Message) (*AnalysisRequest, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var probe struct {
		EventType string `json:"event_type"`
	}
	if msg.Headers[HeaderContentType] != ContentTypeProtobuf {
		if err := json.Unmarshal(msg.Value, &probe); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed analysis request")
		}
	}

	var req AnalysisRequest
	if probe.EventType == "" && msg.Headers[HeaderContentType] != ContentTypeProtobuf {
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed analysis request")
		}
	} else {
		env, err := DecodeEnvelope(msg)
		if err != nil {
			return nil, err
		}
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
	}
	if len(req.Accessions) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "analysis request has no accessions")
	}
	if len(req.Labels) > 0 && len(req.Labels) != len(req.Accessions) {
		return nil, errors.New(errors.ErrCodeValidation, "labels and accessions differ in length")
	}
	return &req, nil
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicSpec describes one topic to create.
type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// Topics returns the request, completed and dead-letter topics of cfg.
func Topics(cfg config.KafkaConfig) []TopicSpec {
	const day = int64(24 * time.Hour / time.Millisecond)
	return []TopicSpec{
		{Name: cfg.RequestTopic, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: cfg.CompletedTopic, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: cfg.DeadLetterTopic, NumPartitions: 1, ReplicationFactor: 1, RetentionMs: 30 * day},
	}
}

// TopicManager creates topics on startup.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the first broker.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to dial kafka")
	}
	return NewTopicManagerWithConn(conn, logger), nil
}

// NewTopicManagerWithConn wraps an existing connection.
func NewTopicManagerWithConn(conn ConnInterface, logger logging.Logger) *TopicManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: logger}
}

// EnsureTopics creates every missing topic. Topics without a name are
// skipped.
func (m *TopicManager) EnsureTopics(ctx context.Context, specs []TopicSpec) error {
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if spec.Name == "" {
			continue
		}
		if exists, _ := m.TopicExists(spec.Name); exists {
			continue
		}
		if err := m.createTopic(spec); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) createTopic(spec TopicSpec) error {
	if spec.NumPartitions <= 0 || spec.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be > 0").WithDetail(spec.Name)
	}
	kCfg := kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.NumPartitions,
		ReplicationFactor: spec.ReplicationFactor,
	}
	if spec.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", spec.RetentionMs)})
	}
	if err := m.conn.CreateTopics(kCfg); err != nil {
		if stderrors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topic").WithDetail(spec.Name)
	}
	m.logger.Info("topic created", logging.String("topic", spec.Name))
	return nil
}

// TopicExists reports whether the broker knows the topic.
func (m *TopicManager) TopicExists(name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, err
	}
	return len(partitions) > 0, nil
}

// Close releases the broker connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}
