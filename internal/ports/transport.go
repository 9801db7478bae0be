package ports

import (
	"context"
	"errors"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

// ErrNotConnected is returned by Publish while the transport has no live session.
var ErrNotConnected = errors.New("transport not connected")

// ConnState is the transport lifecycle. There is no terminal failure state.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Transport delivers inbound publishes on out and carries outbound publishes.
// Start returns once the connection attempt is under way; reconnection is the
// transport's own business.
type Transport interface {
	Start(out chan<- domain.RawMessage) error
	Stop() error
	Publish(ctx context.Context, topic, payload string) error
	State() ConnState
}
