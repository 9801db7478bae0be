// Package loopback is an in-process transport: published values come back as
// inbound messages, and embedding code can inject messages directly.
package loopback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// ErrStopped is returned by Inject once the transport is stopped.
var ErrStopped = errors.New("loopback transport stopped")

type Transport struct {
	mu    sync.RWMutex
	out   chan<- domain.RawMessage
	done  chan struct{}
	state ports.ConnState
	now   func() time.Time
}

func New() *Transport {
	return &Transport{now: time.Now}
}

func (t *Transport) Start(out chan<- domain.RawMessage) error {
	if out == nil {
		return errors.New("loopback: output channel is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out != nil {
		return errors.New("loopback: already started")
	}
	t.out = out
	t.done = make(chan struct{})
	t.state = ports.Connected
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out == nil {
		return nil
	}
	close(t.done)
	t.out = nil
	t.state = ports.Disconnected
	return nil
}

// Inject delivers msg as if a broker had. It blocks while the inbound buffer
// is full, until ctx is done or the transport stops.
func (t *Transport) Inject(ctx context.Context, msg domain.RawMessage) error {
	t.mu.RLock()
	out, done := t.out, t.done
	t.mu.RUnlock()
	if out == nil {
		return ports.ErrNotConnected
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = t.now().UTC()
	}

	select {
	case out <- msg:
		return nil
	case <-done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish loops the value back onto the inbound side.
func (t *Transport) Publish(ctx context.Context, topic, payload string) error {
	return t.Inject(ctx, domain.RawMessage{Topic: topic, Payload: payload})
}

func (t *Transport) State() ports.ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

var _ ports.Transport = (*Transport)(nil)
