package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/septivank/solar-telemetry-worker/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	ServiceName string           `yaml:"service_name"`
	ServicePort int              `yaml:"service_port"`
	LogLevel    string           `yaml:"log_level"`
	Database    DatabaseConfig   `yaml:"database"`
	RabbitMQ    RabbitMQConfig   `yaml:"rabbitmq"`
	Validation  ValidationConfig `yaml:"validation"`
	Anomaly     AnomalyConfig    `yaml:"anomaly"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string `yaml:"url"`
	IngestExchange   string `yaml:"ingest_exchange"`
	IngestQueue      string `yaml:"ingest_queue"`
	IngestRoutingKey string `yaml:"ingest_routing_key"`
	WorkerExchange   string `yaml:"worker_exchange"`
	WorkerRoutingKey string `yaml:"worker_routing_key"`
	DLQQueue         string `yaml:"dlq_queue"`
	PrefetchCount    int    `yaml:"prefetch_count"`
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int     `yaml:"timestamp_tolerance_minutes"`
	NominalFrequency          float64 `yaml:"nominal_frequency"`
	FrequencyTolerance        float64 `yaml:"frequency_tolerance"`
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64 `yaml:"spike_threshold"`
	MinDataPointsForDetection int     `yaml:"min_data_points"`
	HistorySize               int     `yaml:"history_size"`
}

// TelemetryConfig holds the per-deployment payload conventions
type TelemetryConfig struct {
	AcquisitionClock telemetry.AcquisitionClock `yaml:"acquisition_clock"`
}

func defaults() *Config {
	return &Config{
		ServiceName: "solar-telemetry-worker",
		ServicePort: 8081,
		LogLevel:    "info",
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		RabbitMQ: RabbitMQConfig{
			IngestExchange:   "solar-telemetry.ingest.exchange",
			IngestQueue:      "solar-telemetry.ingest.queue",
			IngestRoutingKey: "telemetry.payload.raw",
			WorkerExchange:   "solar-telemetry.worker.events.exchange",
			WorkerRoutingKey: "telemetry.payload.accepted",
			DLQQueue:         "solar-telemetry.ingest.dlq",
			PrefetchCount:    10,
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: 10080,
			NominalFrequency:          50.0,
			FrequencyTolerance:        1.0,
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            3.0,
			MinDataPointsForDetection: 3,
			HistorySize:               10,
		},
		Telemetry: TelemetryConfig{
			AcquisitionClock: telemetry.ClockUptimeMillis,
		},
	}
}

// Load loads configuration from defaults, an optional YAML file named by CONFIG_FILE,
// and environment variables, in that order of precedence
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	clock, err := telemetry.ParseAcquisitionClock(string(cfg.Telemetry.AcquisitionClock))
	if err != nil {
		return nil, fmt.Errorf("TELEMETRY_ACQ_CLOCK: %w", err)
	}
	cfg.Telemetry.AcquisitionClock = clock

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.ServicePort = getEnvAsInt("SERVICE_PORT", cfg.ServicePort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConns = int32(getEnvAsInt("DATABASE_MAX_CONNS", int(cfg.Database.MaxConns)))

	mq := &cfg.RabbitMQ
	mq.URL = getEnv("RABBITMQ_URL", mq.URL)
	mq.IngestExchange = getEnv("RABBITMQ_INGEST_EXCHANGE", mq.IngestExchange)
	mq.IngestQueue = getEnv("RABBITMQ_INGEST_QUEUE", mq.IngestQueue)
	mq.IngestRoutingKey = getEnv("RABBITMQ_INGEST_ROUTING_KEY", mq.IngestRoutingKey)
	mq.WorkerExchange = getEnv("RABBITMQ_WORKER_EXCHANGE", mq.WorkerExchange)
	mq.WorkerRoutingKey = getEnv("RABBITMQ_WORKER_ROUTING_KEY", mq.WorkerRoutingKey)
	mq.DLQQueue = getEnv("RABBITMQ_DLQ_QUEUE", mq.DLQQueue)
	mq.PrefetchCount = getEnvAsInt("RABBITMQ_PREFETCH", mq.PrefetchCount)

	v := &cfg.Validation
	v.TimestampToleranceMinutes = getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", v.TimestampToleranceMinutes)
	v.NominalFrequency = getEnvAsFloat("VALIDATION_NOMINAL_FREQUENCY", v.NominalFrequency)
	v.FrequencyTolerance = getEnvAsFloat("VALIDATION_FREQUENCY_TOLERANCE", v.FrequencyTolerance)

	a := &cfg.Anomaly
	a.SpikeThreshold = getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", a.SpikeThreshold)
	a.MinDataPointsForDetection = getEnvAsInt("ANOMALY_MIN_DATA_POINTS", a.MinDataPointsForDetection)
	a.HistorySize = getEnvAsInt("ANOMALY_HISTORY_SIZE", a.HistorySize)

	cfg.Telemetry.AcquisitionClock = telemetry.AcquisitionClock(
		getEnv("TELEMETRY_ACQ_CLOCK", string(cfg.Telemetry.AcquisitionClock)))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
