package queue

import (
	"context"
	"sync"
	"time"

	"github.com/dwsmith1983/narrator/pkg/types"
)

// Notifier wakes idle workers when work is enqueued.
type Notifier interface {
	// Notify signals that an item of the given type was enqueued. It never blocks.
	Notify(ctx context.Context, queueType types.QueueType)
	// Wait blocks until a signal arrives, the timeout elapses, or ctx is done.
	// It returns ctx.Err() only when ctx ended the wait.
	Wait(ctx context.Context, queueType types.QueueType, timeout time.Duration) error
}

// ChannelNotifier is an in-process Notifier. Each queue type has a single
// buffered slot, so bursts of Notify collapse into one wake-up.
type ChannelNotifier struct {
	mu      sync.Mutex
	signals map[types.QueueType]chan struct{}
}

// NewChannelNotifier creates an in-process notifier.
func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{signals: make(map[types.QueueType]chan struct{})}
}

func (n *ChannelNotifier) signal(qt types.QueueType) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.signals[qt]
	if !ok {
		ch = make(chan struct{}, 1)
		n.signals[qt] = ch
	}
	return ch
}

// Notify performs a non-blocking send on the queue type's signal channel.
func (n *ChannelNotifier) Notify(_ context.Context, qt types.QueueType) {
	select {
	case n.signal(qt) <- struct{}{}:
	default:
	}
}

// Wait blocks on the queue type's signal channel.
func (n *ChannelNotifier) Wait(ctx context.Context, qt types.QueueType, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.signal(qt):
		return nil
	case <-t.C:
		return nil
	}
}
