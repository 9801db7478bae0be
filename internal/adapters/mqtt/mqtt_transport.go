package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// Config captures the broker session parameters.
type Config struct {
	Broker               string        `yaml:"broker"`
	ClientID             string        `yaml:"client_id"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	KeepAlive            time.Duration `yaml:"keep_alive"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	QoS                  byte          `yaml:"qos"`
	// Topics are the subscription filters, usually the namespace filter.
	Topics []string `yaml:"topics"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "ferme-dashboard-" + uuid.NewString()[:8]
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.MaxReconnectInterval < c.ReconnectInterval {
		c.MaxReconnectInterval = time.Minute
	}
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if len(c.Topics) == 0 {
		return errors.New("at least one topic filter must be configured")
	}
	return nil
}

// client is the part of paho.Client the transport drives.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnectionOpen() bool
}

// Transport is a paho MQTT session that resubscribes on every connect and
// reconnects forever.
type Transport struct {
	cfg       Config
	logger    *slog.Logger
	newClient func(*paho.ClientOptions) client

	mu      sync.Mutex
	client  client
	out     chan<- domain.RawMessage
	done    chan struct{}
	started bool

	state atomic.Int32
}

func NewTransport(cfg Config, logger *slog.Logger) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With("component", "mqtt", "broker", cfg.Broker),
		newClient: func(o *paho.ClientOptions) client {
			return paho.NewClient(o)
		},
	}, nil
}

func (t *Transport) Start(out chan<- domain.RawMessage) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("mqtt transport already started")
	}
	t.out = out
	t.done = make(chan struct{})
	c := t.newClient(t.clientOptions())
	t.client = c
	t.started = true
	t.mu.Unlock()

	t.setState(ports.Connecting)
	token := c.Connect()
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		t.logger.Warn("broker unreachable, retrying in background", "timeout", t.cfg.ConnectTimeout)
		return nil
	}
	if err := token.Error(); err != nil {
		t.logger.Warn("initial connect failed, retrying in background", "error", err)
	}
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	c := t.client
	done := t.done
	t.started = false
	t.client = nil
	t.mu.Unlock()

	close(done)
	c.Disconnect(250)
	t.setState(ports.Disconnected)
	return nil
}

// Publish sends payload unretained at the configured QoS. It fails fast with
// ports.ErrNotConnected while the session is down.
func (t *Transport) Publish(ctx context.Context, topic, payload string) error {
	c := t.currentClient()
	if c == nil || !c.IsConnectionOpen() {
		return ports.ErrNotConnected
	}
	token := c.Publish(topic, t.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) State() ports.ConnState {
	return ports.ConnState(t.state.Load())
}

func (t *Transport) setState(s ports.ConnState) {
	t.state.Store(int32(s))
}

func (t *Transport) currentClient() client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *Transport) onConnect(paho.Client) {
	c := t.currentClient()
	if c == nil {
		return
	}
	for _, filter := range t.cfg.Topics {
		token := c.Subscribe(filter, t.cfg.QoS, t.handle)
		if !token.WaitTimeout(t.cfg.ConnectTimeout) {
			t.logger.Warn("subscribe timed out", "filter", filter)
			continue
		}
		if err := token.Error(); err != nil {
			t.logger.Error("subscribe failed", "filter", filter, "error", err)
			continue
		}
		t.logger.Info("subscribed", "filter", filter)
	}
	t.setState(ports.Connected)
	t.logger.Info("connected")
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.setState(ports.Reconnecting)
	t.logger.Warn("connection lost", "error", err)
}

func (t *Transport) onReconnecting(paho.Client, *paho.ClientOptions) {
	t.setState(ports.Reconnecting)
	t.logger.Info("reconnecting")
}

func (t *Transport) handle(_ paho.Client, m paho.Message) {
	msg := domain.RawMessage{
		Topic:      m.Topic(),
		Payload:    string(m.Payload()),
		ReceivedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	out, done := t.out, t.done
	t.mu.Unlock()

	select {
	case out <- msg:
	case <-done:
	}
}

func (t *Transport) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetKeepAlive(t.cfg.KeepAlive).
		SetConnectTimeout(t.cfg.ConnectTimeout).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(t.cfg.ReconnectInterval).
		SetMaxReconnectInterval(t.cfg.MaxReconnectInterval).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(t.onConnectionLost).
		SetReconnectingHandler(t.onReconnecting)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	return opts
}

var _ ports.Transport = (*Transport)(nil)
