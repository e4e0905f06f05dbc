package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler processes one telemetry message. A non-nil error dead-letters the message.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer handles message consumption from RabbitMQ
type Consumer struct {
	channel       *amqp.Channel
	queue         string
	prefetchCount int
	logger        *zap.Logger
	handler       MessageHandler
	started       bool
	done          chan struct{}
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection    *Connection
	Queue         string
	DLQQueue      string
	Exchange      string
	RoutingKey    string
	PrefetchCount int
	Logger        *zap.Logger
	Handler       MessageHandler
}

// NewConsumer creates a new RabbitMQ consumer and declares its topology:
// a durable topic exchange, the ingest queue dead-lettering into the DLQ, and the DLQ itself
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare the DLQ first so rejected payloads always have somewhere to go
	_, err = ch.QueueDeclare(
		cfg.DLQQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	_, err = ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		// A failed declare closes the channel; an existing queue with other args needs a fresh one
		cfg.Logger.Warn("failed to declare queue with DLX, retrying without DLX", zap.Error(err))
		if ch, err = cfg.Connection.Channel(); err != nil {
			return nil, fmt.Errorf("failed to reopen channel: %w", err)
		}
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
		if _, err := ch.QueueDeclarePassive(cfg.Queue, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to declare queue: %w", err)
		}
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Consumer{
		channel:       ch,
		queue:         cfg.Queue,
		prefetchCount: cfg.PrefetchCount,
		logger:        cfg.Logger,
		handler:       cfg.Handler,
		done:          make(chan struct{}),
	}, nil
}

// Start starts consuming messages until ctx is cancelled or the channel closes
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.started = true
	c.logger.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Int("prefetch", c.prefetchCount),
	)

	go func() {
		defer close(c.done)
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer context cancelled, stopping")
				return
			case d, ok := <-msgs:
				if !ok {
					c.logger.Warn("message channel closed")
					return
				}
				c.handle(ctx, d)
			}
		}
	}()

	return nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	msg := MessageFromDelivery(d, time.Now().UTC())

	c.logger.Debug("received message from queue",
		zap.String("queue", c.queue),
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.MessageID),
		zap.Int("body_size", len(msg.Body)),
	)

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("failed to process message",
			zap.Error(err),
			zap.String("message_id", msg.MessageID),
			zap.String("device_id", msg.DeviceID),
		)

		// NACK with requeue=false sends to DLQ
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("failed to ACK message", zap.Error(ackErr))
	}
}

// Close closes the consumer channel and waits for the in-flight message, if any
func (c *Consumer) Close() error {
	if c.channel == nil {
		return nil
	}
	err := c.channel.Close()
	if c.started {
		<-c.done
	}
	return err
}
