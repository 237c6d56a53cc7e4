package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/rewardledger/internal/logger"
)

const (
	defaultWorkers      = 4
	defaultBufferSize   = 256
	defaultDrainTimeout = 5 * time.Second
)

// Handler processes one item; its error is only logged
type Handler[T any] func(ctx context.Context, item T) error

type dropObserver interface {
	ObserveDropped(dispatcher string)
}

type Options struct {
	Workers      int
	BufferSize   int
	DrainTimeout time.Duration // how long buffered items are still handled after stop
}

// Dispatcher hands items to a pool of workers through a buffered channel
// Publish never blocks: a full buffer drops the item
type Dispatcher[T any] struct {
	name         string
	workers      int
	drainTimeout time.Duration

	in      chan T
	handle  Handler[T]
	metrics dropObserver
	logger  logger.Logger
}

func New[T any](name string, handle Handler[T], opts Options, metrics dropObserver, l logger.Logger) *Dispatcher[T] {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}

	return &Dispatcher[T]{
		name:         name,
		workers:      opts.Workers,
		drainTimeout: opts.DrainTimeout,
		in:           make(chan T, opts.BufferSize),
		handle:       handle,
		metrics:      metrics,
		logger:       l.With("dispatcher", name),
	}
}

// Publish enqueues item and reports whether it was accepted
func (d *Dispatcher[T]) Publish(item T) bool {
	select {
	case d.in <- item:
		return true
	default:
		d.logger.Warn("Dispatcher buffer is full, item dropped")
		if d.metrics != nil {
			d.metrics.ObserveDropped(d.name)
		}
		return false
	}
}

// Run starts workers until ctx is done
// The returned channel is closed once every worker has stopped
func (d *Dispatcher[T]) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		d.drain(context.WithoutCancel(ctx))
		d.logger.Debug("Dispatcher stopped")
	}()

	return idleStopped
}

func (d *Dispatcher[T]) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-d.in:
			d.process(ctx, item)
		}
	}
}

// drain handles items left in the buffer after stop, bounded by drainTimeout
func (d *Dispatcher[T]) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.drainTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			if n := len(d.in); n > 0 {
				d.logger.Warn("Dispatcher stopped with undelivered items", "count", n)
			}
			return
		case item := <-d.in:
			d.process(ctx, item)
		default:
			return
		}
	}
}

func (d *Dispatcher[T]) process(ctx context.Context, item T) {
	if err := d.handle(ctx, item); err != nil {
		d.logger.Error("Failed to handle item", "error", err)
	}
}
