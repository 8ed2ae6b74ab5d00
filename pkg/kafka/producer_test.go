package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Brokers: []string{" ", ""}}, nil)
	assert.ErrorIs(t, err, errNoBrokers)
}

func TestPublishKeysByAggregate(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{w: w}

	err := p.Publish(context.Background(), outbox.Message{
		Topic:      "bazaar-order-events",
		Key:        "order-1",
		Data:       []byte(`{"version":1}`),
		Attributes: map[string]string{"event_type": "order_paid", "aggregate_id": "order-1"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "bazaar-order-events", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)
	assert.Equal(t, []kafka.Header{
		{Key: "aggregate_id", Value: []byte("order-1")},
		{Key: "event_type", Value: []byte("order_paid")},
	}, msg.Headers)
}

func TestPublishRejectsMissingTopic(t *testing.T) {
	p := &Producer{w: &recordingWriter{}}
	assert.Error(t, p.Publish(context.Background(), outbox.Message{Key: "k"}))
}

func TestPublishReturnsWriterError(t *testing.T) {
	p := &Producer{w: &recordingWriter{err: errors.New("leader not available")}}
	assert.EqualError(t, p.Publish(context.Background(), outbox.Message{Topic: "t"}), "leader not available")
}

func TestPingReportsUnreachableBrokers(t *testing.T) {
	p := &Producer{
		brokers: []string{"a:9092", "b:9092"},
		dial: func(context.Context, string, string) (*kafka.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	assert.ErrorContains(t, p.Ping(context.Background()), "connection refused")
}

func TestCloseClosesWriter(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, (&Producer{w: w}).Close())
	assert.True(t, w.closed)
}
