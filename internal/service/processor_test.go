package service_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/solar-telemetry-worker/internal/anomaly"
	"github.com/septivank/solar-telemetry-worker/internal/config"
	"github.com/septivank/solar-telemetry-worker/internal/db"
	"github.com/septivank/solar-telemetry-worker/internal/mq"
	"github.com/septivank/solar-telemetry-worker/internal/repository"
	"github.com/septivank/solar-telemetry-worker/internal/service"
	"github.com/septivank/solar-telemetry-worker/internal/telemetry"
	"github.com/septivank/solar-telemetry-worker/internal/validator"
	"go.uber.org/zap"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeStore struct {
	tx           *fakeTx
	device       db.Device
	payloads     []db.TelemetryPayload
	phases       []db.PhaseReading
	lastEnergy   map[string]float64
	powerHistory map[string][]float64
	historyCalls int
	insertErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		device:       db.Device{ID: uuid.New(), DeviceKey: "inverter-7"},
		lastEnergy:   map[string]float64{},
		powerHistory: map[string][]float64{},
	}
}

func (s *fakeStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	s.tx = &fakeTx{}
	return s.tx, nil
}

func (s *fakeStore) GetOrCreateDeviceTx(ctx context.Context, tx repository.Tx, deviceKey string) (*db.Device, error) {
	d := s.device
	d.DeviceKey = deviceKey
	return &d, nil
}

func (s *fakeStore) InsertPayloadTx(ctx context.Context, tx repository.Tx, payload *db.TelemetryPayload) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.payloads = append(s.payloads, *payload)
	return nil
}

func (s *fakeStore) InsertPhaseReadingsTx(ctx context.Context, tx repository.Tx, readings []db.PhaseReading) error {
	s.phases = append(s.phases, readings...)
	return nil
}

func (s *fakeStore) GetRecentPhasePower(ctx context.Context, deviceID uuid.UUID, metricName, phaseLabel string, limit int) ([]float64, error) {
	s.historyCalls++
	return s.powerHistory[phaseLabel], nil
}

func (s *fakeStore) GetLastPhaseEnergy(ctx context.Context, deviceID uuid.UUID, metricName, phaseLabel string) (float64, bool, error) {
	s.historyCalls++
	e, ok := s.lastEnergy[phaseLabel]
	return e, ok, nil
}

type fakePublisher struct {
	events []mq.AcceptedEvent
	err    error
}

func (p *fakePublisher) PublishAcceptedEvent(ctx context.Context, event mq.AcceptedEvent, routingKey string) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

var receivedAt = time.Date(2025, 12, 29, 10, 30, 2, 0, time.UTC)

func newTestProcessor(store *fakeStore, pub *fakePublisher) *service.ProcessorService {
	cfg := &config.Config{
		RabbitMQ:  config.RabbitMQConfig{WorkerRoutingKey: "telemetry.payload.accepted"},
		Anomaly:   config.AnomalyConfig{SpikeThreshold: 3, MinDataPointsForDetection: 3, HistorySize: 10},
		Telemetry: config.TelemetryConfig{AcquisitionClock: telemetry.ClockUptimeMillis},
	}
	return service.NewProcessorService(
		store,
		pub,
		anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection),
		validator.NewValidator(5, 50, 1, cfg.Telemetry.AcquisitionClock),
		cfg,
		zap.NewNop(),
	)
}

func scenarioBody(t *testing.T) []byte {
	t.Helper()
	p, err := telemetry.NewPayload("2025-12-29T10:30:00Z", "main",
		telemetry.LinkStatus{SignalStrength: -62, AcquisitionTime: 1000},
		telemetry.PhaseReading{Label: "A", Current: 10, Voltage: 230, Power: 2300, Energy: 150.5, Frequency: 50, PowerFactor: 0.98},
	)
	if err != nil {
		t.Fatalf("NewPayload failed: %v", err)
	}
	body, err := telemetry.Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return body
}

func message(body []byte) mq.Message {
	return mq.Message{MessageID: "msg-1", DeviceID: "inverter-7", ReceivedAt: receivedAt, Body: body}
}

func TestProcessMessage_ValidPayload(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	processor := newTestProcessor(store, pub)

	body := scenarioBody(t)
	if err := processor.ProcessMessage(context.Background(), message(body)); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	if !store.tx.committed {
		t.Error("Expected transaction to be committed")
	}
	if len(store.payloads) != 1 {
		t.Fatalf("Expected 1 stored payload, got %d", len(store.payloads))
	}

	row := store.payloads[0]
	if row.ValidationStatus != "valid" || row.AnomalyReason != nil {
		t.Errorf("Expected valid payload without reason, got %s %v", row.ValidationStatus, row.AnomalyReason)
	}
	if !row.PayloadTimestamp.Equal(time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("Unexpected payload timestamp %v", row.PayloadTimestamp)
	}
	if row.SignalStrength != -62 || row.AcquisitionTime != 1000 || row.AcquisitionClock != "uptime_ms" {
		t.Errorf("Unexpected link fields %+v", row)
	}
	if string(row.RawPayload) != string(body) {
		t.Error("Expected raw payload to be stored")
	}

	// Sentinel slots are not stored
	if len(store.phases) != 1 || store.phases[0].PhaseLabel != "A" || store.phases[0].Slot != 0 {
		t.Errorf("Expected only phase A to be stored, got %+v", store.phases)
	}

	if len(pub.events) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(pub.events))
	}
	event := pub.events[0]
	if event.PayloadID != row.ID.String() || event.ActivePhases != 1 || event.TotalPower != 2300 {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestProcessMessage_TruncatedPayload(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	processor := newTestProcessor(store, pub)

	err := processor.ProcessMessage(context.Background(), message(scenarioBody(t)[:100]))
	if !errors.Is(err, telemetry.ErrTruncatedInput) {
		t.Fatalf("Expected truncated input error, got %v", err)
	}
	if store.tx != nil || len(pub.events) != 0 {
		t.Error("Rejected payloads must not touch storage or publish")
	}
}

func TestProcessMessage_PowerFactorOutOfRange(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	processor := newTestProcessor(store, pub)

	body := scenarioBody(t)
	// phase A power_factor lives at offset 116
	binary.BigEndian.PutUint32(body[116:120], math.Float32bits(1.5))

	err := processor.ProcessMessage(context.Background(), message(body))
	if !errors.Is(err, telemetry.ErrPowerFactorOutOfRange) {
		t.Fatalf("Expected power factor error, got %v", err)
	}
	if !strings.Contains(err.Error(), "power_factor_out_of_range") {
		t.Errorf("Expected reason label in error, got %v", err)
	}
	if len(store.payloads) != 0 {
		t.Error("Rejected payloads must not be stored")
	}
}

func TestProcessMessage_EnergyRegression(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	store.lastEnergy["A"] = 200
	processor := newTestProcessor(store, pub)

	if err := processor.ProcessMessage(context.Background(), message(scenarioBody(t))); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	row := store.payloads[0]
	if row.ValidationStatus != "invalid" {
		t.Errorf("Expected invalid status, got %s", row.ValidationStatus)
	}
	if row.AnomalyReason == nil || !strings.Contains(*row.AnomalyReason, "energy register decreased") {
		t.Errorf("Expected energy regression reason, got %v", row.AnomalyReason)
	}
	if len(pub.events) != 1 || pub.events[0].ValidationStatus != "invalid" {
		t.Errorf("Expected invalid event to be published, got %+v", pub.events)
	}
}

func TestProcessMessage_PowerSpike(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	store.powerHistory["A"] = []float64{500, 520, 480}
	processor := newTestProcessor(store, pub)

	if err := processor.ProcessMessage(context.Background(), message(scenarioBody(t))); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	row := store.payloads[0]
	if row.AnomalyReason == nil || !strings.Contains(*row.AnomalyReason, "power spike") {
		t.Errorf("Expected power spike reason, got %v", row.AnomalyReason)
	}
}

func TestProcessMessage_OutsideToleranceSkipsAnomalyDetection(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	processor := newTestProcessor(store, pub)

	msg := message(scenarioBody(t))
	msg.ReceivedAt = receivedAt.Add(time.Hour)

	if err := processor.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	if store.payloads[0].ValidationStatus != "invalid" {
		t.Errorf("Expected invalid status, got %s", store.payloads[0].ValidationStatus)
	}
	if store.historyCalls != 0 {
		t.Errorf("Expected no history lookups for invalid payload, got %d", store.historyCalls)
	}
}

func TestProcessMessage_PublishFailureIsNotFatal(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{err: errors.New("channel closed")}
	processor := newTestProcessor(store, pub)

	if err := processor.ProcessMessage(context.Background(), message(scenarioBody(t))); err != nil {
		t.Fatalf("Expected publish failure to be swallowed, got %v", err)
	}
	if !store.tx.committed {
		t.Error("Expected transaction to be committed")
	}
}

func TestProcessMessage_InsertFailureRollsBack(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	store.insertErr = errors.New("disk full")
	processor := newTestProcessor(store, pub)

	if err := processor.ProcessMessage(context.Background(), message(scenarioBody(t))); err == nil {
		t.Fatal("Expected error on insert failure")
	}
	if store.tx.committed || !store.tx.rolledBack {
		t.Error("Expected transaction to be rolled back")
	}
	if len(pub.events) != 0 {
		t.Error("Expected no event on failure")
	}
}

func TestProcessMessage_AdvisoryFlagsAreStored(t *testing.T) {
	store, pub := newFakeStore(), &fakePublisher{}
	processor := newTestProcessor(store, pub)

	p, _ := telemetry.NewPayload("2025-12-29T10:30:00Z", "main",
		telemetry.LinkStatus{SignalStrength: 3, AcquisitionTime: 1000},
		telemetry.PhaseReading{Label: "A", Current: -10, Voltage: 230, Power: -2300, Energy: 150.5, Frequency: 50, PowerFactor: 0.98},
	)
	body, err := telemetry.Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if err := processor.ProcessMessage(context.Background(), message(body)); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	row := store.payloads[0]
	if row.ValidationStatus != "valid" {
		t.Errorf("Advisory flags must not invalidate, got %s", row.ValidationStatus)
	}
	if strings.Join(row.Flags, ",") != "reverse_flow,suspect_signal" {
		t.Errorf("Unexpected flags %v", row.Flags)
	}
}
