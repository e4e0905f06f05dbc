package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/solar-telemetry-worker/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BeginTx starts a new transaction
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetOrCreateDeviceTx retrieves or registers a device within a transaction and bumps last_seen_at
func (r *Repository) GetOrCreateDeviceTx(ctx context.Context, tx pgx.Tx, deviceKey string) (*db.Device, error) {
	query := `
		INSERT INTO telemetry_devices (device_key, first_seen_at, last_seen_at, created_at)
		VALUES ($1, $2, $2, $2)
		ON CONFLICT (device_key) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, device_key, first_seen_at, last_seen_at, created_at
	`

	var device db.Device
	err := tx.QueryRow(ctx, query, deviceKey, time.Now()).Scan(
		&device.ID,
		&device.DeviceKey,
		&device.FirstSeenAt,
		&device.LastSeenAt,
		&device.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}

	return &device, nil
}

// InsertPayloadTx inserts a payload row within a transaction
func (r *Repository) InsertPayloadTx(ctx context.Context, tx pgx.Tx, payload *db.TelemetryPayload) error {
	query := `
		INSERT INTO telemetry_payloads (
			id, device_id, metric_name, payload_timestamp, received_at,
			signal_strength, acquisition_time, acquisition_clock,
			validation_status, anomaly_reason, flags, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	flags := payload.Flags
	if flags == nil {
		flags = []string{}
	}

	_, err := tx.Exec(ctx, query,
		payload.ID,
		payload.DeviceID,
		payload.MetricName,
		payload.PayloadTimestamp,
		payload.ReceivedAt,
		payload.SignalStrength,
		pgtype.Numeric{Int: new(big.Int).SetUint64(payload.AcquisitionTime), Valid: true},
		payload.AcquisitionClock,
		payload.ValidationStatus,
		payload.AnomalyReason,
		flags,
		payload.RawPayload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payload: %w", err)
	}

	return nil
}

// InsertPhaseReadingsTx batch-inserts the phase rows of one payload within a transaction
func (r *Repository) InsertPhaseReadingsTx(ctx context.Context, tx pgx.Tx, readings []db.PhaseReading) error {
	if len(readings) == 0 {
		return nil
	}

	query := `
		INSERT INTO telemetry_phase_readings (
			payload_id, slot, phase_label, current, voltage, power, energy, frequency, power_factor
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	batch := &pgx.Batch{}
	for _, reading := range readings {
		batch.Queue(query,
			reading.PayloadID,
			reading.Slot,
			reading.PhaseLabel,
			reading.Current,
			reading.Voltage,
			reading.Power,
			reading.Energy,
			reading.Frequency,
			reading.PowerFactor,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range readings {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert phase reading: %w", err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close phase reading batch: %w", err)
	}

	return nil
}

// GetRecentPhasePower gets recent active power values of one phase for spike detection
func (r *Repository) GetRecentPhasePower(ctx context.Context, deviceID uuid.UUID, metricName, phaseLabel string, limit int) ([]float64, error) {
	query := `
		SELECT pr.power
		FROM telemetry_phase_readings pr
		JOIN telemetry_payloads p ON p.id = pr.payload_id
		WHERE p.device_id = $1 AND p.metric_name = $2 AND pr.phase_label = $3
			AND p.validation_status = 'valid'
		ORDER BY p.payload_timestamp DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, deviceID, metricName, phaseLabel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent phase power: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return values, nil
}

// GetLastPhaseEnergy gets the most recent energy register of one phase. The boolean is
// false when the phase has no history.
func (r *Repository) GetLastPhaseEnergy(ctx context.Context, deviceID uuid.UUID, metricName, phaseLabel string) (float64, bool, error) {
	query := `
		SELECT pr.energy
		FROM telemetry_phase_readings pr
		JOIN telemetry_payloads p ON p.id = pr.payload_id
		WHERE p.device_id = $1 AND p.metric_name = $2 AND pr.phase_label = $3
		ORDER BY p.payload_timestamp DESC
		LIMIT 1
	`

	var energy float64
	err := r.pool.QueryRow(ctx, query, deviceID, metricName, phaseLabel).Scan(&energy)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query last phase energy: %w", err)
	}

	return energy, true, nil
}
