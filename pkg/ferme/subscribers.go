package ferme

import (
	"sync"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// EventHandler receives every event emitted by the engine. It runs on the
// ingestion goroutine and must return quickly.
type EventHandler func(Event)

// NewCallbackSubscriber adapts a function into a Broadcaster so embedding
// programs can observe live changes without a websocket client.
func NewCallbackSubscriber(fn EventHandler) Broadcaster {
	return callbackSubscriber(fn)
}

// NewChannelSubscriber exposes events on a buffered channel. Events are
// dropped while the buffer is full. The returned close function must be
// called during shutdown, after the runtime has stopped emitting.
func NewChannelSubscriber(buffer int) (Broadcaster, <-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &channelSubscriber{ch: make(chan Event, buffer)}
	return s, s.ch, s.close
}

type callbackSubscriber EventHandler

func (fn callbackSubscriber) Emit(kind domain.EventKind, payload any) {
	if fn != nil {
		fn(Event{Kind: kind, Data: payload})
	}
}

type channelSubscriber struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func (s *channelSubscriber) Emit(kind domain.EventKind, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- Event{Kind: kind, Data: payload}:
	default:
	}
}

func (s *channelSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// fanout emits to every broadcaster in order.
type fanout []ports.Broadcaster

func (f fanout) Emit(kind domain.EventKind, payload any) {
	for _, b := range f {
		b.Emit(kind, payload)
	}
}
