package pipeline

import (
	"context"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// RunEdgePipeline starts the transport on a bounded channel and feeds every
// delivered message through eng on one goroutine, so messages are processed
// one at a time in delivery order. The returned channel is closed once the
// consumer has stopped, after ctx is cancelled.
func RunEdgePipeline(ctx context.Context, tr ports.Transport, eng *Engine, pol ports.Policy, obs ports.Observability) (<-chan struct{}, error) {
	buf := pol.InboundBuffer
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan domain.RawMessage, buf)

	if err := tr.Start(ch); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				start := time.Now()
				eng.Process(ctx, msg)
				obs.ObserveLatency(ports.HistProcessLatency, time.Since(start).Seconds())
			}
		}
	}()

	return done, nil
}
