package ferme

import (
	"context"

	"github.com/fasanicam/ferme-dashboard/internal/adapters/loopback"
)

// Injector is a broker-less Transport: embedding code pushes messages with
// Inject and outbound publishes loop straight back into the engine. Pass it
// to WithTransport.
type Injector struct {
	*loopback.Transport
}

func NewInjector() *Injector {
	return &Injector{Transport: loopback.New()}
}

// InjectValue pushes one publish on topic. It blocks while the engine's
// inbound buffer is full.
func (i *Injector) InjectValue(ctx context.Context, topic, payload string) error {
	return i.Inject(ctx, RawMessage{Topic: topic, Payload: payload})
}
