// Package bridge holds the chain-agnostic event and message types the
// coordinator passes between the watchers, the signing session manager,
// and the chain clients, along with the token-map bijection and canonical
// message serialization.
package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Chain identifies one side of the bridge, used as half of the processed-set
// key and in structured log fields throughout.
type Chain string

const (
	ChainA Chain = "A"
	ChainB Chain = "B"
)

// EventKind discriminates the BridgeEvent sum type.
type EventKind string

const (
	KindLockOnA EventKind = "lock_on_a"
	KindBurnOnB EventKind = "burn_on_b"
)

// BridgeEvent is a single cross-chain transfer request observed on one
// chain and destined to be effected on the other. Exactly one of the
// Lock/Burn fields is populated, selected by Kind; the two directions stay
// distinct payload structs rather than one loosely-typed envelope, since
// their fields genuinely differ (token address vs asset id).
type BridgeEvent struct {
	Kind EventKind
	Lock *LockOnA
	Burn *BurnOnB
}

// LockOnA is a token lock observed on Chain-A, to be minted on Chain-B.
type LockOnA struct {
	UserA      [20]byte
	TokenA     [20]byte
	Amount     *big.Int
	RecipientB [32]byte
	SrcTx      string // globally unique idempotency key
	SrcBlock   uint64
}

// BurnOnB is a wrapped-token burn observed on Chain-B, to be unlocked on
// Chain-A.
type BurnOnB struct {
	UserB      [32]byte
	AssetID    uint32
	Amount     *big.Int
	RecipientA [20]byte
	SrcTx      string
	SrcBlock   uint64
}

// SourceChain returns which chain this event was observed on.
func (e *BridgeEvent) SourceChain() Chain {
	if e.Kind == KindLockOnA {
		return ChainA
	}
	return ChainB
}

// SrcTx returns the event's idempotency key regardless of kind.
func (e *BridgeEvent) SrcTx() string {
	switch e.Kind {
	case KindLockOnA:
		return e.Lock.SrcTx
	case KindBurnOnB:
		return e.Burn.SrcTx
	default:
		return ""
	}
}

// SrcBlock returns the observing chain's block height for ordering.
func (e *BridgeEvent) SrcBlock() uint64 {
	switch e.Kind {
	case KindLockOnA:
		return e.Lock.SrcBlock
	case KindBurnOnB:
		return e.Burn.SrcBlock
	default:
		return 0
	}
}

// Validate rejects events with an empty idempotency key or a nil amount,
// the two malformations the watcher must catch before insertion rather
// than letting them propagate into signing.
func (e *BridgeEvent) Validate() error {
	switch e.Kind {
	case KindLockOnA:
		if e.Lock == nil {
			return fmt.Errorf("%w: nil LockOnA payload", ErrMalformedEvent)
		}
		if e.Lock.SrcTx == "" {
			return fmt.Errorf("%w: empty src_tx", ErrMalformedEvent)
		}
		if e.Lock.Amount == nil || e.Lock.Amount.Sign() < 0 {
			return fmt.Errorf("%w: invalid amount for %s", ErrMalformedEvent, e.Lock.SrcTx)
		}
	case KindBurnOnB:
		if e.Burn == nil {
			return fmt.Errorf("%w: nil BurnOnB payload", ErrMalformedEvent)
		}
		if e.Burn.SrcTx == "" {
			return fmt.Errorf("%w: empty src_tx", ErrMalformedEvent)
		}
		if e.Burn.Amount == nil || e.Burn.Amount.Sign() < 0 {
			return fmt.Errorf("%w: invalid amount for %s", ErrMalformedEvent, e.Burn.SrcTx)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, e.Kind)
	}
	return nil
}

func amountBytes(amount *big.Int) []byte {
	out := make([]byte, 32)
	amount.FillBytes(out)
	return out
}

func uint32Bytes(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}
