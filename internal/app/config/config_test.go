package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/adapters/natsbridge"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
policy:
  max_queue_len: 1000
transport:
  kind: mqtt
  mqtt:
    broker: tcp://broker.local:1883
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Policy.MaxQueueLen != 1000 {
		t.Fatalf("expected MaxQueueLen 1000, got %d", cfg.Policy.MaxQueueLen)
	}
	if cfg.Policy.IdleSleep != 5*time.Millisecond {
		t.Fatalf("expected IdleSleep default 5ms, got %s", cfg.Policy.IdleSleep)
	}
	if cfg.Policy.RateLimitWindow != 5*time.Second || cfg.Policy.RingCapacity != 10 {
		t.Fatalf("unexpected engine defaults %+v", cfg.Policy)
	}
	if cfg.Policy.CleanupEvery != 1000 || cfg.Policy.RetentionCeiling != 1_000_000 {
		t.Fatalf("unexpected retention defaults %+v", cfg.Policy)
	}
	if cfg.Topics.PublishPrefix != "bzh/mecatro/dashboard" {
		t.Fatalf("unexpected publish prefix %q", cfg.Topics.PublishPrefix)
	}
	if got := cfg.Transport.MQTT.Topics; len(got) != 1 || got[0] != "bzh/mecatro/#" {
		t.Fatalf("mqtt topics must default to the namespace filter, got %v", got)
	}
	if !strings.HasPrefix(cfg.Transport.MQTT.ClientID, "ferme-dashboard-") {
		t.Fatalf("unexpected client id %q", cfg.Transport.MQTT.ClientID)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Path != "./data/ferme.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Metrics.Addr != ":9100" || cfg.HTTP.Addr != ":8080" || cfg.HTTP.WSPath != "/ws" {
		t.Fatalf("unexpected listener defaults %+v %+v", cfg.Metrics, cfg.HTTP)
	}
	if cfg.WAL.Dir != "./data/wal" {
		t.Fatalf("expected default wal dir ./data/wal, got %s", cfg.WAL.Dir)
	}
	if cfg.Log.MaxSizeMB != 1 || cfg.Log.MaxBackups != 5 {
		t.Fatalf("unexpected log rotation defaults %+v", cfg.Log)
	}
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("FERME_DSN", "postgres://ferme:secret@db/ferme?sslmode=disable")
	t.Setenv("FERME_ROOT", "bretagne")

	cfg, err := Parse([]byte(`
topics:
  root: ${FERME_ROOT}
storage:
  driver: postgres
  dsn: ${FERME_DSN}
transport:
  kind: nats
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.DSN != "postgres://ferme:secret@db/ferme?sslmode=disable" {
		t.Fatalf("dsn not expanded: %q", cfg.Storage.DSN)
	}
	if got := cfg.Transport.NATS.Topics; len(got) != 1 || got[0] != "bretagne/mecatro/#" {
		t.Fatalf("nats topics must follow the configured root, got %v", got)
	}
	if cfg.Classifier().Namespace() != "bretagne/mecatro" {
		t.Fatalf("unexpected namespace %q", cfg.Classifier().Namespace())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"transport kind": "transport:\n  kind: amqp\n",
		"storage driver": "storage:\n  driver: oracle\n",
		"missing dsn":    "storage:\n  driver: mysql\n",
		"queue policy":   "policy:\n  on_queue_full: explode\n",
		"wal policy":     "policy:\n  on_wal_full: block\n",
		"mqtt qos":       "transport:\n  mqtt:\n    qos: 3\n",
		"root segment":   "topics:\n  root: a/b\n",
		"ws path":        "http:\n  ws_path: ws\n",
		"log level":      "log:\n  level: loud\n",
	}
	for name, data := range tests {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestShippedConfigSubscribesOverNATS(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "data", "config.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if err := cfg.Transport.NATS.Validate(); err != nil {
		t.Fatalf("shipped nats section: %v", err)
	}
	if got := natsbridge.TopicToSubject(cfg.Transport.NATS.Topics[0]); got != "bzh.mecatro.>" {
		t.Fatalf("nats subject = %q, want bzh.mecatro.>", got)
	}
}
