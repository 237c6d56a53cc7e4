package events

import (
	"context"

	"github.com/nkiryanov/rewardledger/internal/dispatch"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

// Sink receives committed ledger events
// Publish must not block the caller
type Sink interface {
	Publish(ev models.Event)
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(models.Event) {}

// Fanout publishes every event to each sink in order
type Fanout []Sink

func (f Fanout) Publish(ev models.Event) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// Writer persists or forwards one event, may block
type Writer interface {
	Write(ctx context.Context, ev models.Event) error
}

// AsyncSink hands events to a Writer on background workers
type AsyncSink struct {
	d *dispatch.Dispatcher[models.Event]
}

func NewAsyncSink(name string, w Writer, opts dispatch.Options, metrics interface{ ObserveDropped(string) }, l logger.Logger) *AsyncSink {
	return &AsyncSink{
		d: dispatch.New(name, w.Write, opts, metrics, l),
	}
}

func (s *AsyncSink) Publish(ev models.Event) {
	s.d.Publish(ev)
}

func (s *AsyncSink) Run(ctx context.Context) <-chan struct{} {
	return s.d.Run(ctx)
}
