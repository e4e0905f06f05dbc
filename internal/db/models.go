package db

import (
	"time"

	"github.com/google/uuid"
)

// Device represents a monitoring device in the database
type Device struct {
	ID          uuid.UUID
	DeviceKey   string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

// TelemetryPayload represents one received payload in the database
type TelemetryPayload struct {
	ID               uuid.UUID
	DeviceID         uuid.UUID
	MetricName       string
	PayloadTimestamp time.Time
	ReceivedAt       time.Time
	SignalStrength   int32
	AcquisitionTime  uint64
	AcquisitionClock string
	ValidationStatus string
	AnomalyReason    *string
	Flags            []string
	RawPayload       []byte
}

// PhaseReading represents one non-sentinel phase slot of a stored payload
type PhaseReading struct {
	PayloadID   uuid.UUID
	Slot        int
	PhaseLabel  string
	Current     float32
	Voltage     float32
	Power       float32
	Energy      float32
	Frequency   float32
	PowerFactor float32
}
