// Package channel provides the in-memory run-event bus connecting the
// orchestrator to observers such as the analytics recorder.
package channel

import (
	"context"
	"errors"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink records bus health. Implementations must not block.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

type Option func(*EventBus)

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

type EventBus struct {
	ch      chan domain.RunEvent
	metrics MetricsSink
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch: make(chan domain.RunEvent, buffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit enqueues an event, blocking until there is room or ctx is done.
func (b *EventBus) Emit(ctx context.Context, event domain.RunEvent) error {
	select {
	case b.ch <- event:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	}
}

// TryEmit enqueues an event without blocking. Observability must never stall
// a trigger tick, so the orchestrator uses this and accepts drops.
func (b *EventBus) TryEmit(event domain.RunEvent) error {
	select {
	case b.ch <- event:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	default:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.RunEvent {
	return b.ch
}
