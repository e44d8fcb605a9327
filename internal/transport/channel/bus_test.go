package channel

import (
	"context"
	"testing"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

func TestEventBus_EmitAndReceive(t *testing.T) {
	bus := NewEventBus(4)

	event := domain.RunEvent{
		TaskID:     "t1",
		CatalogKey: "k1",
		Outcome:    domain.RunLaunched,
		At:         time.Date(2025, 7, 16, 10, 0, 0, 0, time.UTC),
	}

	if err := bus.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case got := <-bus.Channel():
		if got.CatalogKey != "k1" || got.Outcome != domain.RunLaunched {
			t.Errorf("received %+v, want %+v", got, event)
		}
	default:
		t.Fatal("no event on channel")
	}
}

func TestEventBus_TryEmitFullBuffer(t *testing.T) {
	bus := NewEventBus(1)

	if err := bus.TryEmit(domain.RunEvent{TaskID: "a"}); err != nil {
		t.Fatalf("first TryEmit: %v", err)
	}
	if err := bus.TryEmit(domain.RunEvent{TaskID: "b"}); err != ErrBufferFull {
		t.Errorf("TryEmit on full buffer = %v, want ErrBufferFull", err)
	}
}

func TestEventBus_EmitCancelledContext(t *testing.T) {
	bus := NewEventBus(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bus.Emit(ctx, domain.RunEvent{}); err != context.Canceled {
		t.Errorf("Emit = %v, want context.Canceled", err)
	}
}

type countingSink struct {
	sizeUpdates int
	emitErrors  int
}

func (s *countingSink) BufferSizeUpdate(size int) { s.sizeUpdates++ }
func (s *countingSink) EmitError()                { s.emitErrors++ }

func TestEventBus_MetricsHooks(t *testing.T) {
	sink := &countingSink{}
	bus := NewEventBus(1, WithMetrics(sink))

	bus.TryEmit(domain.RunEvent{})
	bus.TryEmit(domain.RunEvent{}) // dropped

	if sink.sizeUpdates != 1 {
		t.Errorf("sizeUpdates = %d, want 1", sink.sizeUpdates)
	}
	if sink.emitErrors != 1 {
		t.Errorf("emitErrors = %d, want 1", sink.emitErrors)
	}
}
