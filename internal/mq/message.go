package mq

import (
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeviceIDHeader names the AMQP header carrying the producing device's identifier
const DeviceIDHeader = "device_id"

// Message is a received telemetry delivery, stripped of broker details
type Message struct {
	MessageID   string
	DeviceID    string
	RoutingKey  string
	ContentType string
	ReceivedAt  time.Time
	Body        []byte
}

// MessageFromDelivery extracts a Message. The device is taken from the device_id header,
// then the AppId, then the routing key. A missing message ID is replaced with a fresh UUID.
func MessageFromDelivery(d amqp.Delivery, now time.Time) Message {
	msg := Message{
		MessageID:   d.MessageId,
		DeviceID:    headerString(d.Headers, DeviceIDHeader),
		RoutingKey:  d.RoutingKey,
		ContentType: d.ContentType,
		ReceivedAt:  now,
		Body:        d.Body,
	}

	if msg.DeviceID == "" {
		msg.DeviceID = d.AppId
	}
	if msg.DeviceID == "" {
		msg.DeviceID = d.RoutingKey
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}
	if !d.Timestamp.IsZero() {
		msg.ReceivedAt = d.Timestamp
	}

	return msg
}

func headerString(headers amqp.Table, key string) string {
	switch v := headers[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}
