package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

type mockKafkaConn struct {
	existing map[string]bool
	created  []kafka.TopicConfig
	err      error
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	var out []kafka.Partition
	for _, t := range topics {
		if m.existing[t] {
			out = append(out, kafka.Partition{Topic: t})
		}
	}
	return out, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func samplePayload() AnalysisCompletedPayload {
	return AnalysisCompletedPayload{
		SessionID:    "9b2f3c1e-1111-4222-8333-444455556666",
		Labels:       []string{"1ABC", "2XYZ"},
		Accessions:   []string{"1ABC"},
		Cutoff:       5,
		Structures:   2,
		Atoms:        1234,
		Interactions: 56,
		Intra:        40,
		Inter:        16,
		DurationMs:   87,
		CreatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, encoding := range []string{EncodingJSON, EncodingProtobuf} {
		t.Run(encoding, func(t *testing.T) {
			codec, err := NewCodec(encoding)
			require.NoError(t, err)

			env, err := NewEventEnvelope(EventAnalysisCompleted, "apiserver", samplePayload())
			require.NoError(t, err)
			out, err := codec.Encode("completed", env)
			require.NoError(t, err)
			assert.Equal(t, env.EventID, string(out.Key))

			in := &common.Message{Topic: out.Topic, Value: out.Value, Headers: out.Headers}
			decoded, err := DecodeEnvelope(in)
			require.NoError(t, err)
			assert.Equal(t, env.EventID, decoded.EventID)
			assert.Equal(t, EventAnalysisCompleted, decoded.EventType)
			assert.True(t, env.Timestamp.Equal(decoded.Timestamp))

			var p AnalysisCompletedPayload
			require.NoError(t, decoded.DecodePayload(&p))
			assert.Equal(t, samplePayload(), p)
		})
	}
}

func TestCodec_ContentTypeHeader(t *testing.T) {
	env, err := NewEventEnvelope(EventAnalysisCompleted, "apiserver", samplePayload())
	require.NoError(t, err)

	pb, _ := NewCodec(EncodingProtobuf)
	out, err := pb.Encode("t", env)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeProtobuf, out.Headers[HeaderContentType])

	js, _ := NewCodec("")
	out, err = js.Encode("t", env)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, out.Headers[HeaderContentType])

	_, err = NewCodec("avro")
	assert.Error(t, err)
}

func TestDecodeAnalysisRequest(t *testing.T) {
	bare := &common.Message{Value: []byte(`{"accessions":["1abc","2xyz"],"labels":["a","b"]}`)}
	req, err := DecodeAnalysisRequest(bare)
	require.NoError(t, err)
	assert.Equal(t, []string{"1abc", "2xyz"}, req.Accessions)
	assert.Equal(t, []string{"a", "b"}, req.Labels)

	env, err := NewEventEnvelope(EventAnalysisRequested, "cli", AnalysisRequest{Accessions: []string{"4HHB"}, Cutoff: 4})
	require.NoError(t, err)
	codec, _ := NewCodec(EncodingProtobuf)
	out, err := codec.Encode("req", env)
	require.NoError(t, err)
	req, err = DecodeAnalysisRequest(&common.Message{Value: out.Value, Headers: out.Headers})
	require.NoError(t, err)
	assert.Equal(t, []string{"4HHB"}, req.Accessions)
	assert.Equal(t, 4.0, req.Cutoff)
}

func TestDecodeAnalysisRequest_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":      ``,
		"malformed":  `{`,
		"no codes":   `{"accessions":[]}`,
		"label skew": `{"accessions":["1ABC"],"labels":["a","b"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAnalysisRequest(&common.Message{Value: []byte(body)})
			assert.Error(t, err)
		})
	}
}

func TestTopicManager_EnsureTopics(t *testing.T) {
	cfg := config.KafkaConfig{RequestTopic: "req", CompletedTopic: "done", DeadLetterTopic: "dlq"}
	conn := &mockKafkaConn{existing: map[string]bool{"req": true}}
	m := NewTopicManagerWithConn(conn, nil)

	require.NoError(t, m.EnsureTopics(context.Background(), Topics(cfg)))
	require.Len(t, conn.created, 2)
	assert.Equal(t, "done", conn.created[0].Topic)
	assert.Equal(t, "dlq", conn.created[1].Topic)
	assert.Equal(t, "retention.ms", conn.created[1].ConfigEntries[0].ConfigName)
}

func TestTopicManager_AlreadyExistsIsIgnored(t *testing.T) {
	m := NewTopicManagerWithConn(&mockKafkaConn{err: kafka.TopicAlreadyExists}, nil)
	assert.NoError(t, m.EnsureTopics(context.Background(), []TopicSpec{{Name: "x", NumPartitions: 1, ReplicationFactor: 1}}))

	m = NewTopicManagerWithConn(&mockKafkaConn{err: errors.New("denied")}, nil)
	assert.Error(t, m.EnsureTopics(context.Background(), []TopicSpec{{Name: "x", NumPartitions: 1, ReplicationFactor: 1}}))
}
