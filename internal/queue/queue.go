// Package queue implements the bounded, backpressuring channel that
// connects the chain watchers to the coordinator.
package queue

import (
	"context"

	"github.com/bridgerelay/coordinator/internal/bridge"
)

// Queue is a bounded FIFO of BridgeEvents. A full queue blocks Push,
// applying backpressure to the watcher that produced the event rather than
// dropping it or growing unboundedly.
type Queue struct {
	ch chan *bridge.BridgeEvent
}

func New(capacity int) *Queue {
	return &Queue{ch: make(chan *bridge.BridgeEvent, capacity)}
}

// Push enqueues ev, blocking if the queue is full until space frees up or
// ctx is cancelled.
func (q *Queue) Push(ctx context.Context, ev *bridge.BridgeEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side for the coordinator's consumer loop.
func (q *Queue) Events() <-chan *bridge.BridgeEvent {
	return q.ch
}

// Len reports the number of events currently buffered, a rough backlog
// indicator. The /stats façade does not report it.
func (q *Queue) Len() int {
	return len(q.ch)
}
