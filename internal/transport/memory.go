package transport

import (
	"context"
	"sync"
)

// InMemory is a loopback SignatureTransport: every Broadcast fans out to
// every Subscribe channel registered so far, including the broadcaster's
// own. It is only valid within a single process and exists for tests and
// single-process demos.
type InMemory struct {
	mu   sync.Mutex
	subs []chan Message
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (t *InMemory) Broadcast(ctx context.Context, msg Message) error {
	t.mu.Lock()
	subs := make([]chan Message, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *InMemory) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, 64)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch, nil
}

func (t *InMemory) Close() error { return nil }

var _ SignatureTransport = (*InMemory)(nil)
