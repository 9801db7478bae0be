// Package natsbridge consumes the MQTT namespace through a NATS server with
// its MQTT gateway enabled. Topics are translated to and from NATS subjects
// with the gateway's mapping.
package natsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

type Config struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
	// Topics are MQTT-style filters, translated with TopicToSubject.
	Topics []string `yaml:"topics"`
}

func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "ferme-dashboard"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if len(c.Topics) == 0 {
		return errors.New("at least one topic filter must be configured")
	}
	for _, topic := range c.Topics {
		if strings.ContainsAny(topic, ">*") {
			return fmt.Errorf("topic %q uses NATS wildcards, write it as an MQTT filter (# and +)", topic)
		}
	}
	return nil
}

// TopicToSubject maps an MQTT topic or filter onto a NATS subject.
func TopicToSubject(topic string) string {
	return strings.NewReplacer(".", "//", "/", ".", "#", ">", "+", "*").Replace(topic)
}

// SubjectToTopic reverses TopicToSubject for concrete subjects.
func SubjectToTopic(subject string) string {
	var b strings.Builder
	for i := 0; i < len(subject); i++ {
		switch {
		case subject[i] == '/' && i+1 < len(subject) && subject[i+1] == '/':
			b.WriteByte('.')
			i++
		case subject[i] == '.':
			b.WriteByte('/')
		default:
			b.WriteByte(subject[i])
		}
	}
	return b.String()
}

type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *nats.Conn
	subs    []*nats.Subscription
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
	return &Transport{cfg: cfg, logger: logger.With("component", "nats", "url", cfg.URL)}, nil
}

func (t *Transport) Start(out chan<- domain.RawMessage) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("nats transport already started")
	}
	t.out = out
	t.done = make(chan struct{})
	t.started = true
	t.mu.Unlock()

	t.setState(ports.Connecting)
	conn, err := nats.Connect(t.cfg.URL, t.options()...)
	if err != nil {
		t.abortStart()
		return fmt.Errorf("nats connect: %w", err)
	}

	subs := make([]*nats.Subscription, 0, len(t.cfg.Topics))
	for _, filter := range t.cfg.Topics {
		subject := TopicToSubject(filter)
		sub, err := conn.Subscribe(subject, t.handle)
		if err != nil {
			conn.Close()
			t.abortStart()
			return fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
		t.logger.Info("subscribed", "filter", filter, "subject", subject)
	}

	t.mu.Lock()
	t.conn = conn
	t.subs = subs
	t.mu.Unlock()

	if conn.IsConnected() {
		t.setState(ports.Connected)
	}
	return nil
}

func (t *Transport) abortStart() {
	t.mu.Lock()
	t.started = false
	t.mu.Unlock()
	t.setState(ports.Disconnected)
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	conn, subs, done := t.conn, t.subs, t.done
	t.started = false
	t.conn = nil
	t.subs = nil
	t.mu.Unlock()

	close(done)
	var err error
	for _, sub := range subs {
		if e := sub.Unsubscribe(); e != nil && !errors.Is(e, nats.ErrConnectionClosed) {
			err = errors.Join(err, e)
		}
	}
	if conn != nil {
		conn.Close()
	}
	t.setState(ports.Disconnected)
	return err
}

func (t *Transport) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		return ports.ErrNotConnected
	}
	return conn.Publish(TopicToSubject(topic), []byte(payload))
}

func (t *Transport) State() ports.ConnState {
	return ports.ConnState(t.state.Load())
}

func (t *Transport) setState(s ports.ConnState) {
	t.state.Store(int32(s))
}

func (t *Transport) handle(msg *nats.Msg) {
	raw := domain.RawMessage{
		Topic:      SubjectToTopic(msg.Subject),
		Payload:    string(msg.Data),
		ReceivedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	out, done := t.out, t.done
	t.mu.Unlock()

	select {
	case out <- raw:
	case <-done:
	}
}

func (t *Transport) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(t.cfg.Name),
		nats.Timeout(t.cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(t.cfg.ReconnectWait),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(*nats.Conn) {
			t.setState(ports.Connected)
			t.logger.Info("connected")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.setState(ports.Reconnecting)
			t.logger.Warn("connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			t.setState(ports.Connected)
			t.logger.Info("reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			t.setState(ports.Disconnected)
		}),
	}
	if t.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(t.cfg.Username, t.cfg.Password))
	}
	return opts
}

var _ ports.Transport = (*Transport)(nil)
