package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleEvent struct {
	Type       string `json:"type"`
	BookingRef string `json:"bookingRef"`
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &kafkaPublisher{writer: w, topic: "bookit.bookings"}

	require.NoError(t, p.Publish(context.Background(), "BK7Q2X9Z", sampleEvent{Type: "booking.confirmed", BookingRef: "BK7Q2X9Z"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("BK7Q2X9Z"), w.msgs[0].Key)
	assert.JSONEq(t, `{"type":"booking.confirmed","bookingRef":"BK7Q2X9Z"}`, string(w.msgs[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublishError(t *testing.T) {
	p := &kafkaPublisher{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "bookit.bookings"}

	err := p.Publish(context.Background(), "BK7Q2X9Z", sampleEvent{})
	assert.ErrorContains(t, err, "leader not available")
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestRabbitPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := &rabbitPublisher{ch: ch, exchange: "bookit.events"}

	require.NoError(t, p.Publish(context.Background(), "BK7Q2X9Z", sampleEvent{Type: "booking.confirmed", BookingRef: "BK7Q2X9Z"}))
	assert.Equal(t, "bookit.events", ch.exchange)
	assert.Equal(t, "booking.confirmed", ch.key)
	assert.Equal(t, "BK7Q2X9Z", ch.msg.MessageId)
	assert.Equal(t, "application/json", ch.msg.ContentType)

	var decoded sampleEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "BK7Q2X9Z", decoded.BookingRef)
}

func TestRoutingKeyFallback(t *testing.T) {
	assert.Equal(t, "event", routingKey([]byte(`{"bookingRef":"x"}`)))
	assert.Equal(t, "event", routingKey([]byte(`[1,2]`)))
}

func TestNew(t *testing.T) {
	p, err := New(Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), "k", sampleEvent{Type: "x"}))
	assert.NoError(t, p.Close())

	_, err = New(Config{Driver: "nats"})
	assert.Error(t, err)
}
