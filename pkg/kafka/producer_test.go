package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w MessageWriter) *Producer {
	return NewProducerWithWriter(w, "clover.merges", zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
}

func TestProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	payload := map[string]string{"keeper_id": "k1"}
	err := p.Publish(context.Background(), "merge.applied", "k1", payload, map[string]string{
		"schema_version": "1.0",
		"correlation_id": "req-1",
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "clover.merges", msg.Topic)
	assert.Equal(t, []byte("k1"), msg.Key)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, payload, decoded)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "merge.applied", string(msg.Headers[0].Value))
	assert.Equal(t, "correlation_id", msg.Headers[1].Key, "extra headers are sorted")
	assert.Equal(t, "schema_version", msg.Headers[2].Key)
}

func TestProducer_PublishErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), "merge.applied", "k1", map[string]string{}, nil)
	assert.EqualError(t, err, "broker down")

	err = p.Publish(context.Background(), "merge.applied", "k1", make(chan int), nil)
	assert.Error(t, err, "unmarshalable payloads fail before writing")
}

func TestProducer_Close(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)
	assert.Equal(t, "clover.merges", p.Topic())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
