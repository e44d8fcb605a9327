package analytics

import (
	"context"
	"log"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

// Writer persists one run event.
type Writer interface {
	Write(ctx context.Context, event domain.RunEvent) error
}

// Recorder drains run events from a channel into a Writer. Analytics are
// best-effort: a write failure is logged and the event dropped, never
// propagated back to the orchestrator.
type Recorder struct {
	writer Writer
}

func NewRecorder(writer Writer) *Recorder {
	return &Recorder{writer: writer}
}

// Run consumes events until ctx is cancelled or the channel closes.
func (r *Recorder) Run(ctx context.Context, events <-chan domain.RunEvent) {
	log.Println("analytics: recorder started")

	for {
		select {
		case <-ctx.Done():
			log.Println("analytics: recorder stopped")
			return
		case event, ok := <-events:
			if !ok {
				log.Println("analytics: event channel closed")
				return
			}
			if err := r.writer.Write(ctx, event); err != nil {
				log.Printf("analytics: failed to record %s for catalog=%s: %v",
					event.Outcome, event.CatalogKey, err)
			}
		}
	}
}
