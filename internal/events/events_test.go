package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/dispatch"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Write(_ context.Context, ev models.Event) error {
	r.Publish(ev)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	sink := Fanout{a, Discard{}, b}

	sink.Publish(models.NewEvent(models.EventAccountCreated, "1", time.Now()))

	require.Equal(t, 1, a.len())
	require.Equal(t, 1, b.len())
}

func TestAsyncSink(t *testing.T) {
	w := &recorder{}
	sink := NewAsyncSink("test", w, dispatch.Options{Workers: 1}, nil, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(t.Context())
	stopped := sink.Run(ctx)

	sink.Publish(models.NewEvent(models.EventTransaction, "1", time.Now()))
	sink.Publish(models.NewEvent(models.EventTransaction, "2", time.Now()))

	require.Eventually(t, func() bool { return w.len() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
}
