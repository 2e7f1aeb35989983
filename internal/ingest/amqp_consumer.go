package ingest

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/ride-notify/internal/observability"
)

// AMQPSource consumes change envelopes from a durable RabbitMQ queue with
// manual acknowledgement.
type AMQPSource struct {
	URL      string
	Queue    string
	Prefetch int
	Handle   Handler
	Logger   *slog.Logger
}

// Run dials the broker and consumes until ctx is cancelled or the
// delivery channel closes.
func (s *AMQPSource) Run(ctx context.Context) error {
	conn, err := amqp.Dial(s.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(s.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", s.Queue, err)
	}
	if s.Prefetch > 0 {
		if err := ch.Qos(s.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}
	msgs, err := ch.ConsumeWithContext(ctx, s.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", s.Queue, err)
	}
	s.logger().Info("amqp consumer started", "queue", s.Queue)
	return s.consume(ctx, msgs)
}

func (s *AMQPSource) consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	log := s.logger()
	for {
		select {
		case <-ctx.Done():
			log.Info("amqp consumer stopping")
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("amqp delivery channel closed")
			}
			observability.MessagesConsumed.WithLabelValues("amqp").Inc()
			if err := s.Handle(ctx, d.Body); err != nil {
				log.Warn("rejecting undecodable message", "delivery_tag", d.DeliveryTag, "error", err)
				if err := d.Reject(false); err != nil {
					observability.ConsumerErrors.WithLabelValues("amqp", "reject").Inc()
					log.Error("amqp reject failed", "error", err)
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				observability.ConsumerErrors.WithLabelValues("amqp", "ack").Inc()
				log.Error("amqp ack failed", "delivery_tag", d.DeliveryTag, "error", err)
			}
		}
	}
}

func (s *AMQPSource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
