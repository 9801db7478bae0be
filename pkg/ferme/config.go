package ferme

import (
	"github.com/fasanicam/ferme-dashboard/internal/adapters/mqtt"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/natsbridge"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/observability"
	"github.com/fasanicam/ferme-dashboard/internal/app/config"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy holds the engine constants and the WAL/queue thresholds.
	Policy = ports.Policy
	// TopicsConfig fixes the <root>/<subsystem> namespace.
	TopicsConfig = config.TopicsConfig
	// TransportConfig selects and configures the broker connection.
	TransportConfig = config.TransportConfig
	// MQTTConfig holds the MQTT session parameters.
	MQTTConfig = mqtt.Config
	// NATSConfig holds the NATS connection parameters.
	NATSConfig = natsbridge.Config
	// StorageConfig selects the database.
	StorageConfig = config.StorageConfig
	// HTTPConfig configures the API and websocket listener.
	HTTPConfig = config.HTTPConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
	// LogConfig configures structured logging and file rotation.
	LogConfig = observability.LogConfig
)

const (
	TransportMQTT     = config.TransportMQTT
	TransportNATS     = config.TransportNATS
	TransportLoopback = config.TransportLoopback

	DriverPostgres = config.DriverPostgres
	DriverMySQL    = config.DriverMySQL
	DriverSQLite   = config.DriverSQLite
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
