/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
// Controller options (station delay, masters, water level) are persisted in
// the database, not here.
type Config struct {
	Environment       string
	HTTPBind          string
	HTTPPort          int
	DBBackend         DatabaseBackend
	DBDSN             string
	JWTSigningKey     string
	AdminPasswordHash string // bcrypt hash for the API login
	MetricsBind       string
	Timezone          string
	SeedFile          string // Optional YAML imported on first start

	// Controller runtime
	QueueCapacity   int
	PollInterval    time.Duration
	RunLogRetention time.Duration

	// Run log archive, empty bucket prunes without a copy
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchivePrefix    string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchivePathStyle bool

	// Network probe, empty address disables it
	NetworkProbeAddr     string
	NetworkProbeInterval time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Status cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event fan-out
	NATSURL string

	// MQTT telemetry and sensor inputs
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	// Weather adjustment
	WeatherURL      string
	WeatherInterval time.Duration

	// Local hardware
	FlowGPIOPin  string // periph pin name for the flow sensor input, empty disables
	RainGPIOPin  string // periph pin name for the rain sensor input, empty disables
	RFGPIOPin    string // periph pin name for the RF transmitter data line
	SRDataPin    string // shift register pins, all empty selects the in-memory bank
	SRClockPin   string
	SRLatchPin   string
	MDNSEnabled   bool
	MDNSInterface string
	InstanceName  string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       getEnvAny([]string{"OPENHOME_ENV"}, "development"),
		HTTPBind:          getEnvAny([]string{"OPENHOME_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:          getEnvIntAny([]string{"OPENHOME_HTTP_PORT"}, 8080),
		DBBackend:         DatabaseBackend(getEnvAny([]string{"OPENHOME_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:             getEnvAny([]string{"OPENHOME_DB_DSN"}, "openhome.db"),
		JWTSigningKey:     getEnvAny([]string{"OPENHOME_JWT_SIGNING_KEY"}, ""),
		AdminPasswordHash: getEnvAny([]string{"OPENHOME_ADMIN_PASSWORD_HASH"}, ""),
		MetricsBind:       getEnvAny([]string{"OPENHOME_METRICS_BIND"}, "127.0.0.1:9000"),
		Timezone:          getEnvAny([]string{"OPENHOME_TIMEZONE", "TZ"}, "Local"),
		SeedFile:          getEnvAny([]string{"OPENHOME_SEED_FILE"}, ""),

		QueueCapacity:   getEnvIntAny([]string{"OPENHOME_QUEUE_CAPACITY"}, 84),
		PollInterval:    time.Duration(getEnvIntAny([]string{"OPENHOME_POLL_MS"}, 200)) * time.Millisecond,
		RunLogRetention: time.Duration(getEnvIntAny([]string{"OPENHOME_RUNLOG_RETENTION_DAYS"}, 365)) * 24 * time.Hour,

		ArchiveBucket:    getEnvAny([]string{"OPENHOME_ARCHIVE_S3_BUCKET"}, ""),
		ArchiveEndpoint:  getEnvAny([]string{"OPENHOME_ARCHIVE_S3_ENDPOINT"}, ""),
		ArchiveRegion:    getEnvAny([]string{"OPENHOME_ARCHIVE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		ArchivePrefix:    getEnvAny([]string{"OPENHOME_ARCHIVE_S3_PREFIX"}, "openhome"),
		ArchiveAccessKey: getEnvAny([]string{"OPENHOME_ARCHIVE_S3_ACCESS_KEY"}, ""),
		ArchiveSecretKey: getEnvAny([]string{"OPENHOME_ARCHIVE_S3_SECRET_KEY"}, ""),
		ArchivePathStyle: getEnvBoolAny([]string{"OPENHOME_ARCHIVE_S3_PATH_STYLE"}, false),

		NetworkProbeAddr:     getEnvAny([]string{"OPENHOME_NETWORK_PROBE_ADDR"}, ""),
		NetworkProbeInterval: time.Duration(getEnvIntAny([]string{"OPENHOME_NETWORK_PROBE_SECONDS"}, 60)) * time.Second,

		TracingEnabled:    getEnvBoolAny([]string{"OPENHOME_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"OPENHOME_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"OPENHOME_TRACING_SAMPLE_RATE"}, 1.0),

		RedisAddr:     getEnvAny([]string{"OPENHOME_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"OPENHOME_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"OPENHOME_REDIS_DB"}, 0),

		NATSURL: getEnvAny([]string{"OPENHOME_NATS_URL"}, ""),

		MQTTBroker:      getEnvAny([]string{"OPENHOME_MQTT_BROKER"}, ""),
		MQTTClientID:    getEnvAny([]string{"OPENHOME_MQTT_CLIENT_ID"}, "openhome"),
		MQTTTopicPrefix: getEnvAny([]string{"OPENHOME_MQTT_TOPIC_PREFIX"}, "openhome"),

		WeatherURL:      getEnvAny([]string{"OPENHOME_WEATHER_URL"}, ""),
		WeatherInterval: time.Duration(getEnvIntAny([]string{"OPENHOME_WEATHER_INTERVAL_MINUTES"}, 60)) * time.Minute,

		FlowGPIOPin:  getEnvAny([]string{"OPENHOME_FLOW_GPIO_PIN"}, ""),
		RainGPIOPin:  getEnvAny([]string{"OPENHOME_RAIN_GPIO_PIN"}, ""),
		RFGPIOPin:    getEnvAny([]string{"OPENHOME_RF_GPIO_PIN"}, ""),
		SRDataPin:    getEnvAny([]string{"OPENHOME_SR_DATA_PIN"}, ""),
		SRClockPin:   getEnvAny([]string{"OPENHOME_SR_CLOCK_PIN"}, ""),
		SRLatchPin:   getEnvAny([]string{"OPENHOME_SR_LATCH_PIN"}, ""),
		MDNSEnabled:   getEnvBoolAny([]string{"OPENHOME_MDNS_ENABLED"}, true),
		MDNSInterface: getEnvAny([]string{"OPENHOME_MDNS_INTERFACE"}, ""),
		InstanceName:  getEnvAny([]string{"OPENHOME_INSTANCE_NAME"}, "openhome"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("OPENHOME_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("OPENHOME_JWT_SIGNING_KEY must be provided")
	}

	if cfg.QueueCapacity <= 0 || cfg.QueueCapacity > 255 {
		return nil, fmt.Errorf("OPENHOME_QUEUE_CAPACITY must be between 1 and 255, got %d", cfg.QueueCapacity)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("OPENHOME_POLL_MS must be positive")
	}

	if cfg.NetworkProbeAddr != "" && cfg.NetworkProbeInterval <= 0 {
		return nil, fmt.Errorf("OPENHOME_NETWORK_PROBE_SECONDS must be positive")
	}

	if sr := []string{cfg.SRDataPin, cfg.SRClockPin, cfg.SRLatchPin}; slices.Contains(sr, "") && slices.ContainsFunc(sr, func(p string) bool { return p != "" }) {
		return nil, fmt.Errorf("OPENHOME_SR_DATA_PIN, OPENHOME_SR_CLOCK_PIN and OPENHOME_SR_LATCH_PIN must be set together")
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("OPENHOME_ADMIN_PASSWORD_HASH must be set in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Location resolves the configured timezone used for program matching.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"OS_DB_DSN":       "use OPENHOME_DB_DSN",
		"OS_MQTT_BROKER":  "use OPENHOME_MQTT_BROKER",
		"OS_WEATHER_URL":  "use OPENHOME_WEATHER_URL",
		"TRACING_ENABLED": "use OPENHOME_TRACING_ENABLED",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
