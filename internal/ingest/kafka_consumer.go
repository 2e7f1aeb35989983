package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-notify/internal/observability"
)

// MessageReader is the subset of *kafka.Reader the source uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource feeds a consumer group's messages to a Handler, committing
// each offset once the handler returns.
type KafkaSource struct {
	Reader     MessageReader
	Handle     Handler
	Logger     *slog.Logger
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Run consumes until ctx is cancelled. Read errors back off exponentially.
func (s *KafkaSource) Run(ctx context.Context) error {
	log := s.logger()
	bo := newBackoff(s.MinBackoff, s.MaxBackoff)
	for {
		m, err := s.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("kafka consumer stopping")
				return nil
			}
			observability.ConsumerErrors.WithLabelValues("kafka", "fetch").Inc()
			wait := bo.next()
			log.Warn("kafka fetch failed", "error", err, "backoff", wait)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		bo.reset()
		observability.MessagesConsumed.WithLabelValues("kafka").Inc()

		if err := s.Handle(ctx, m.Value); err != nil {
			log.Warn("dropping undecodable message", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
		if err := s.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			observability.ConsumerErrors.WithLabelValues("kafka", "commit").Inc()
			log.Error("kafka commit failed", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

func (s *KafkaSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
