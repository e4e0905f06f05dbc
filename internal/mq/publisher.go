package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher bound to a topic exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
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

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// AcceptedEvent is published after a payload has been stored
type AcceptedEvent struct {
	PayloadID        string   `json:"payload_id"`
	DeviceID         string   `json:"device_id"`
	MetricName       string   `json:"metric_name"`
	PayloadTimestamp string   `json:"payload_timestamp"`
	ActivePhases     int      `json:"active_phases"`
	TotalPower       float64  `json:"total_power"`
	SignalStrength   int32    `json:"signal_strength"`
	ValidationStatus string   `json:"validation_status"`
	AnomalyReason    string   `json:"anomaly_reason,omitempty"`
	Flags            []string `json:"flags,omitempty"`
}

// PublishAcceptedEvent publishes a stored-payload event as JSON
func (p *Publisher) PublishAcceptedEvent(ctx context.Context, event AcceptedEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published accepted event",
		zap.String("routing_key", routingKey),
		zap.String("payload_id", event.PayloadID),
		zap.String("device_id", event.DeviceID),
	)

	return nil
}

// PublishPayload publishes an encoded telemetry payload on behalf of a device
func (p *Publisher) PublishPayload(ctx context.Context, routingKey, deviceID string, body []byte) (string, error) {
	messageID := uuid.New().String()

	err := p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/octet-stream",
			Headers:      amqp.Table{DeviceIDHeader: deviceID},
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to publish payload: %w", err)
	}

	return messageID, nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
