package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fasanicam/ferme-dashboard/internal/adapters/mqtt"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/natsbridge"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/observability"
	"github.com/fasanicam/ferme-dashboard/internal/app/classify"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const (
	TransportMQTT     = "mqtt"
	TransportNATS     = "nats"
	TransportLoopback = "loopback"

	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Policy    ports.Policy            `yaml:"policy"`
	Topics    TopicsConfig            `yaml:"topics"`
	Transport TransportConfig         `yaml:"transport"`
	Storage   StorageConfig           `yaml:"storage"`
	HTTP      HTTPConfig              `yaml:"http"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	WAL       WALConfig               `yaml:"wal"`
	Log       observability.LogConfig `yaml:"log"`
}

// TopicsConfig fixes the namespace. PublishPrefix defaults to
// <root>/<subsystem>/dashboard.
type TopicsConfig struct {
	Root          string `yaml:"root"`
	Subsystem     string `yaml:"subsystem"`
	PublishPrefix string `yaml:"publish_prefix"`
}

type TransportConfig struct {
	Kind string            `yaml:"kind"`
	MQTT mqtt.Config       `yaml:"mqtt"`
	NATS natsbridge.Config `yaml:"nats"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

type HTTPConfig struct {
	Addr   string `yaml:"addr"`
	WSPath string `yaml:"ws_path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the YAML file at path, expanding ${VAR} references first.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a validated configuration for a local MQTT broker and an
// SQLite database under ./data.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// Classifier builds the topic classifier for the configured namespace.
func (c *Config) Classifier() *classify.Classifier {
	return classify.New(c.Topics.Root, c.Topics.Subsystem)
}

func (c *Config) ApplyDefaults() {
	c.Policy.ApplyDefaults()

	if c.Topics.Root == "" {
		c.Topics.Root = classify.DefaultRoot
	}
	if c.Topics.Subsystem == "" {
		c.Topics.Subsystem = classify.DefaultSubsystem
	}
	if c.Topics.PublishPrefix == "" {
		c.Topics.PublishPrefix = c.Topics.Root + "/" + c.Topics.Subsystem + "/dashboard"
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportMQTT
	}
	filter := c.Classifier().Filter()
	if len(c.Transport.MQTT.Topics) == 0 {
		c.Transport.MQTT.Topics = []string{filter}
	}
	if len(c.Transport.NATS.Topics) == 0 {
		c.Transport.NATS.Topics = []string{filter}
	}
	if c.Transport.MQTT.Broker == "" {
		c.Transport.MQTT.Broker = "tcp://localhost:1883"
	}
	c.Transport.MQTT.ApplyDefaults()
	c.Transport.NATS.ApplyDefaults()

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = "./data/ferme.db"
	}
	if c.Storage.PoolSize == 0 {
		c.Storage.PoolSize = 4
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.WSPath == "" {
		c.HTTP.WSPath = "/ws"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/wal"
	}

	c.Log.ApplyDefaults()
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Kind {
	case TransportMQTT:
		if err := c.Transport.MQTT.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("transport.mqtt: %w", err))
		}
	case TransportNATS:
		if err := c.Transport.NATS.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("transport.nats: %w", err))
		}
	case TransportLoopback:
	default:
		errs = append(errs, fmt.Errorf("transport.kind must be mqtt, nats or loopback, got %q", c.Transport.Kind))
	}

	switch c.Storage.Driver {
	case DriverPostgres, DriverMySQL:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for %s", c.Storage.Driver))
		}
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres, mysql or sqlite, got %q", c.Storage.Driver))
	}

	if strings.Contains(c.Topics.Root, "/") || strings.Contains(c.Topics.Subsystem, "/") {
		errs = append(errs, errors.New("topics.root and topics.subsystem must be single segments"))
	}
	if !strings.HasPrefix(c.HTTP.WSPath, "/") {
		errs = append(errs, fmt.Errorf("http.ws_path must start with /, got %q", c.HTTP.WSPath))
	}
	if c.WAL.Dir == "" {
		errs = append(errs, errors.New("wal.dir is required"))
	}
	if err := validatePolicy(c.Policy); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	return errors.Join(errs...)
}

func validatePolicy(p ports.Policy) error {
	switch p.OnQueueFull {
	case ports.QueueFullSpill, ports.QueueFullDrop:
	default:
		return fmt.Errorf("on_queue_full must be spill or drop, got %q", p.OnQueueFull)
	}
	switch p.OnWALFull {
	case ports.WALFullGrow, ports.WALFullDrop:
	default:
		return fmt.Errorf("on_wal_full must be grow or drop, got %q", p.OnWALFull)
	}
	if p.MaxQueueLen <= 0 || p.MaxBatchSize <= 0 {
		return errors.New("max_queue_len and max_batch_size must be > 0")
	}
	if p.RingCapacity <= 0 {
		return errors.New("ring_capacity must be > 0")
	}
	return nil
}
