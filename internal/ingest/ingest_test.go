package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs int
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErrs > 0 {
		f.fetchErrs--
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(f.queue) == 0 {
		f.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestKafkaSourceHandlesAndCommitsEveryMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		queue: []kafka.Message{
			{Offset: 1, Value: []byte(`{"id":"e1"}`)},
			{Offset: 2, Value: []byte(`garbage`)},
			{Offset: 3, Value: []byte(`{"id":"e3"}`)},
		},
		fetchErrs: 2,
		cancel:    cancel,
	}
	var handled []string
	src := &KafkaSource{
		Reader: r,
		Handle: func(_ context.Context, body []byte) error {
			handled = append(handled, string(body))
			if string(body) == "garbage" {
				return errors.New("malformed")
			}
			return nil
		},
		MinBackoff: time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
	}

	require.NoError(t, src.Run(ctx))
	assert.Len(t, handled, 3)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := newBackoff(time.Second, 4*time.Second)
	assert.Equal(t, time.Second, b.next())
	assert.Equal(t, 2*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())
	b.reset()
	assert.Equal(t, time.Second, b.next())
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaProducerKeysByDocument(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaProducerWithWriter(w)
	require.NoError(t, p.PublishEnvelope(context.Background(), "trip123", []byte(`{"kind":"trip"}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "trip123", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"kind":"trip"}`, string(w.msgs[0].Value))

	w.err = errors.New("leader not available")
	assert.Error(t, p.PublishEnvelope(context.Background(), "trip123", nil))
}

type fakeAcker struct {
	mu       sync.Mutex
	acked    []uint64
	rejected []uint64
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcker) Nack(tag uint64, _ bool, _ bool) error { return nil }

func (f *fakeAcker) Reject(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, tag)
	return nil
}

func TestAMQPSourceAcksValidAndRejectsMalformed(t *testing.T) {
	acker := &fakeAcker{}
	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("ok")}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("bad")}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("ok")}
	close(msgs)

	src := &AMQPSource{Handle: func(_ context.Context, body []byte) error {
		if string(body) == "bad" {
			return errors.New("malformed")
		}
		return nil
	}}

	err := src.consume(context.Background(), msgs)
	assert.ErrorContains(t, err, "closed")
	assert.Equal(t, []uint64{1, 3}, acker.acked)
	assert.Equal(t, []uint64{2}, acker.rejected)
}

func TestAMQPSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &AMQPSource{Handle: func(context.Context, []byte) error { return nil }}
	assert.NoError(t, src.consume(ctx, make(chan amqp.Delivery)))
}
