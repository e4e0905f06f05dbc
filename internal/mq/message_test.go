package mq_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/septivank/solar-telemetry-worker/internal/mq"
)

func TestMessageFromDelivery_DeviceHeader(t *testing.T) {
	now := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	sent := now.Add(-2 * time.Second)

	msg := mq.MessageFromDelivery(amqp.Delivery{
		Headers:     amqp.Table{mq.DeviceIDHeader: "inverter-7"},
		AppId:       "gateway-1",
		RoutingKey:  "telemetry.payload.raw",
		ContentType: "application/octet-stream",
		MessageId:   "msg-1",
		Timestamp:   sent,
		Body:        []byte{1, 2, 3},
	}, now)

	if msg.DeviceID != "inverter-7" {
		t.Errorf("Expected device from header, got '%s'", msg.DeviceID)
	}
	if msg.MessageID != "msg-1" {
		t.Errorf("Expected message id msg-1, got '%s'", msg.MessageID)
	}
	if !msg.ReceivedAt.Equal(sent) {
		t.Errorf("Expected broker timestamp %v, got %v", sent, msg.ReceivedAt)
	}
	if len(msg.Body) != 3 {
		t.Errorf("Expected body to be carried over, got %d bytes", len(msg.Body))
	}
}

func TestMessageFromDelivery_Fallbacks(t *testing.T) {
	now := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)

	msg := mq.MessageFromDelivery(amqp.Delivery{
		Headers: amqp.Table{mq.DeviceIDHeader: []byte("inverter-8")},
	}, now)
	if msg.DeviceID != "inverter-8" {
		t.Errorf("Expected device from byte header, got '%s'", msg.DeviceID)
	}

	msg = mq.MessageFromDelivery(amqp.Delivery{AppId: "gateway-1", RoutingKey: "site.a"}, now)
	if msg.DeviceID != "gateway-1" {
		t.Errorf("Expected device from AppId, got '%s'", msg.DeviceID)
	}

	msg = mq.MessageFromDelivery(amqp.Delivery{RoutingKey: "site.a"}, now)
	if msg.DeviceID != "site.a" {
		t.Errorf("Expected device from routing key, got '%s'", msg.DeviceID)
	}
	if !msg.ReceivedAt.Equal(now) {
		t.Errorf("Expected receipt time %v, got %v", now, msg.ReceivedAt)
	}
	if _, err := uuid.Parse(msg.MessageID); err != nil {
		t.Errorf("Expected generated UUID message id, got '%s'", msg.MessageID)
	}
}
