// Package transport implements SignatureTransport: outbound broadcast of a
// validator's own partial signature and an inbound stream of every
// validator's broadcasts, including the caller's own (the session manager
// de-duplicates). Nonce shares dealt by threshold.DealSessionNonce never
// pass through this interface; it only ever carries partials.
package transport

import (
	"context"

	"github.com/bridgerelay/coordinator/internal/threshold"
)

// Message is one validator's partial signature for one session, as it
// travels over the wire.
type Message struct {
	SessionID   string
	ValidatorID threshold.ValidatorID
	Partial     threshold.PartialSignature
}

// SignatureTransport is implemented over an in-memory loopback (tests, or
// a single-process demo with all validators local) or NATS (real
// multi-validator deployments). The coordinator depends on nothing beyond
// eventual delivery.
type SignatureTransport interface {
	Broadcast(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context) (<-chan Message, error)
	Close() error
}
