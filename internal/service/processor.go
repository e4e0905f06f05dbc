package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/solar-telemetry-worker/internal/anomaly"
	"github.com/septivank/solar-telemetry-worker/internal/config"
	"github.com/septivank/solar-telemetry-worker/internal/db"
	"github.com/septivank/solar-telemetry-worker/internal/logging"
	"github.com/septivank/solar-telemetry-worker/internal/metrics"
	"github.com/septivank/solar-telemetry-worker/internal/mq"
	"github.com/septivank/solar-telemetry-worker/internal/repository"
	"github.com/septivank/solar-telemetry-worker/internal/telemetry"
	"github.com/septivank/solar-telemetry-worker/internal/validator"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	statusValid   = "valid"
	statusInvalid = "invalid"
)

// Store is the persistence the processor needs
type Store interface {
	BeginTx(ctx context.Context) (repository.Tx, error)
	GetOrCreateDeviceTx(ctx context.Context, tx repository.Tx, deviceKey string) (*db.Device, error)
	InsertPayloadTx(ctx context.Context, tx repository.Tx, payload *db.TelemetryPayload) error
	InsertPhaseReadingsTx(ctx context.Context, tx repository.Tx, readings []db.PhaseReading) error
	GetRecentPhasePower(ctx context.Context, deviceID uuid.UUID, metricName, phaseLabel string, limit int) ([]float64, error)
	GetLastPhaseEnergy(ctx context.Context, deviceID uuid.UUID, metricName, phaseLabel string) (float64, bool, error)
}

// EventPublisher publishes accepted-payload events
type EventPublisher interface {
	PublishAcceptedEvent(ctx context.Context, event mq.AcceptedEvent, routingKey string) error
}

// ProcessorService handles message processing logic
type ProcessorService struct {
	store     Store
	publisher EventPublisher
	detector  *anomaly.Detector
	validator *validator.Validator
	cfg       *config.Config
	logger    *zap.Logger
}

// NewProcessorService creates a new processor service
func NewProcessorService(
	store Store,
	publisher EventPublisher,
	detector *anomaly.Detector,
	validator *validator.Validator,
	cfg *config.Config,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		store:     store,
		publisher: publisher,
		detector:  detector,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessMessage decodes, evaluates and stores one telemetry payload. Payloads that break
// the wire or data contract are returned as errors so the consumer dead-letters them.
func (s *ProcessorService) ProcessMessage(ctx context.Context, msg mq.Message) error {
	start := time.Now()

	reqLogger := logging.WithDevice(logging.WithRequestID(s.logger, msg.MessageID), msg.DeviceID)

	payload, err := decode(msg.Body)
	if err != nil {
		reason := telemetry.Reason(err)
		metrics.IncRejected(reason)
		metrics.ObservePayload(metrics.ResultRejected, time.Since(start))

		problems := make([]string, 0)
		for _, e := range multierr.Errors(err) {
			problems = append(problems, e.Error())
		}
		reqLogger.Warn("rejecting payload",
			zap.String("reason", reason),
			zap.Strings("problems", problems),
			zap.Int("body_size", len(msg.Body)),
		)
		return fmt.Errorf("rejected payload (%s): %w", reason, err)
	}

	reqLogger.Info("processing payload",
		zap.String("metric_name", payload.MetricName),
		zap.Int("active_phases", payload.ActivePhases()),
	)

	readingTime, result := s.validator.Evaluate(payload, msg.ReceivedAt)

	validationStatus := statusValid
	var reasons []string
	if !result.IsValid {
		validationStatus = statusInvalid
		reasons = append(reasons, result.AnomalyReason)
	}

	flags := make([]string, 0, len(result.Flags))
	for _, f := range result.Flags {
		flags = append(flags, string(f))
		metrics.IncAdvisory(string(f))
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		reqLogger.Error("failed to begin transaction", zap.Error(err))
		metrics.ObservePayload(metrics.ResultError, time.Since(start))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	device, err := s.store.GetOrCreateDeviceTx(ctx, tx, msg.DeviceID)
	if err != nil {
		reqLogger.Error("failed to get or create device", zap.Error(err))
		metrics.ObservePayload(metrics.ResultError, time.Since(start))
		return fmt.Errorf("failed to get or create device: %w", err)
	}

	reqLogger.Debug("device resolved", zap.String("device_uuid", device.ID.String()))

	// Only do anomaly detection for valid payloads
	if result.IsValid {
		if anomalies := s.detectAnomalies(ctx, device.ID, payload, reqLogger); len(anomalies) > 0 {
			validationStatus = statusInvalid
			reasons = append(reasons, anomalies...)
		}
	}

	var anomalyReason *string
	if len(reasons) > 0 {
		joined := strings.Join(reasons, "; ")
		anomalyReason = &joined
	}

	row := &db.TelemetryPayload{
		ID:               uuid.New(),
		DeviceID:         device.ID,
		MetricName:       payload.MetricName,
		PayloadTimestamp: readingTime,
		ReceivedAt:       msg.ReceivedAt,
		SignalStrength:   payload.Link.SignalStrength,
		AcquisitionTime:  payload.Link.AcquisitionTime,
		AcquisitionClock: string(s.cfg.Telemetry.AcquisitionClock),
		ValidationStatus: validationStatus,
		AnomalyReason:    anomalyReason,
		Flags:            flags,
		RawPayload:       msg.Body,
	}

	if err := s.store.InsertPayloadTx(ctx, tx, row); err != nil {
		reqLogger.Error("failed to insert payload", zap.Error(err))
		metrics.ObservePayload(metrics.ResultError, time.Since(start))
		return fmt.Errorf("failed to insert payload: %w", err)
	}

	if err := s.store.InsertPhaseReadingsTx(ctx, tx, phaseRows(row.ID, payload)); err != nil {
		reqLogger.Error("failed to insert phase readings", zap.Error(err))
		metrics.ObservePayload(metrics.ResultError, time.Since(start))
		return fmt.Errorf("failed to insert phase readings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		reqLogger.Error("failed to commit transaction", zap.Error(err))
		metrics.ObservePayload(metrics.ResultError, time.Since(start))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	event := mq.AcceptedEvent{
		PayloadID:        row.ID.String(),
		DeviceID:         msg.DeviceID,
		MetricName:       payload.MetricName,
		PayloadTimestamp: readingTime.UTC().Format(time.RFC3339Nano),
		ActivePhases:     payload.ActivePhases(),
		TotalPower:       payload.TotalPower(),
		SignalStrength:   payload.Link.SignalStrength,
		ValidationStatus: validationStatus,
		Flags:            flags,
	}
	if anomalyReason != nil {
		event.AnomalyReason = *anomalyReason
	}

	// Publish after commit; a lost event does not undo the stored payload
	if err := s.publisher.PublishAcceptedEvent(ctx, event, s.cfg.RabbitMQ.WorkerRoutingKey); err != nil {
		metrics.IncPublishFailure()
		reqLogger.Error("failed to publish event",
			zap.Error(err),
			zap.String("payload_id", event.PayloadID),
		)
	}

	metrics.ObservePayload(validationStatus, time.Since(start))
	reqLogger.Info("payload processed successfully",
		zap.String("payload_id", event.PayloadID),
		zap.String("validation_status", validationStatus),
		zap.Strings("flags", flags),
	)

	return nil
}

// decode parses the wire layout and reports every contract violation at once
func decode(body []byte) (telemetry.Payload, error) {
	payload, err := telemetry.Parse(body)
	if err != nil {
		return telemetry.Payload{}, err
	}
	if err := telemetry.ValidateAll(payload); err != nil {
		return telemetry.Payload{}, err
	}
	return payload, nil
}

func (s *ProcessorService) detectAnomalies(ctx context.Context, deviceID uuid.UUID, payload telemetry.Payload, logger *zap.Logger) []string {
	var anomalies []string

	for _, ph := range payload.Phases {
		if ph.IsSentinel() {
			continue
		}

		previous, ok, err := s.store.GetLastPhaseEnergy(ctx, deviceID, payload.MetricName, ph.Label)
		if err != nil {
			logger.Warn("failed to get last energy for anomaly detection",
				zap.Error(err),
				zap.String("phase", ph.Label),
			)
		} else if ok {
			if isAnomaly, reason := s.detector.DetectEnergyRegression(float64(ph.Energy), previous); isAnomaly {
				metrics.IncAnomaly("energy_regression")
				anomalies = append(anomalies, fmt.Sprintf("phase %s: %s", ph.Label, reason))
			}
		}

		history, err := s.store.GetRecentPhasePower(ctx, deviceID, payload.MetricName, ph.Label, s.cfg.Anomaly.HistorySize)
		if err != nil {
			logger.Warn("failed to get historical power for anomaly detection",
				zap.Error(err),
				zap.String("phase", ph.Label),
			)
			continue
		}
		if isAnomaly, reason := s.detector.DetectPowerSpike(float64(ph.Power), history); isAnomaly {
			metrics.IncAnomaly("power_spike")
			anomalies = append(anomalies, fmt.Sprintf("phase %s: %s", ph.Label, reason))
			logger.Debug("anomaly detected",
				zap.String("phase", ph.Label),
				zap.Float32("power", ph.Power),
				zap.String("reason", reason),
			)
		}
	}

	return anomalies
}

// phaseRows converts the non-sentinel slots of a payload into storage rows
func phaseRows(payloadID uuid.UUID, payload telemetry.Payload) []db.PhaseReading {
	rows := make([]db.PhaseReading, 0, telemetry.PhaseCount)
	for slot, ph := range payload.Phases {
		if ph.IsSentinel() {
			continue
		}
		rows = append(rows, db.PhaseReading{
			PayloadID:   payloadID,
			Slot:        slot,
			PhaseLabel:  ph.Label,
			Current:     ph.Current,
			Voltage:     ph.Voltage,
			Power:       ph.Power,
			Energy:      ph.Energy,
			Frequency:   ph.Frequency,
			PowerFactor: ph.PowerFactor,
		})
	}
	return rows
}
