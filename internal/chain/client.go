// Package chain implements the two outbound submitters that encode
// mint/unlock calls, sign them, submit them, and await inclusion. It also
// supplies the minimal ChainClient surface the watcher polls against.
package chain

import (
	"context"
	"errors"
)

// SubmissionErrorClass classifies an outbound submission failure so the
// coordinator can decide whether to treat it as already-done, retry it, or
// escalate it.
type SubmissionErrorClass int

const (
	ClassUnknown SubmissionErrorClass = iota
	ClassAlreadyProcessed
	ClassTransient
	ClassPermanent
)

// SubmissionError wraps an outbound-call failure with its classification so
// the coordinator can decide whether to treat it as success, retry it, or
// escalate it as a fatal inconsistency.
type SubmissionError struct {
	Class SubmissionErrorClass
	Err   error
}

func (e *SubmissionError) Error() string { return e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

func NewSubmissionError(class SubmissionErrorClass, err error) *SubmissionError {
	return &SubmissionError{Class: class, Err: err}
}

var ErrNotConfirmed = errors.New("chain: transaction not yet confirmed")

// Client is the outbound half of a chain integration. Each chain's client
// also satisfies watcher.ChainClient for the inbound half.
type Client interface {
	// SubmitEffect encodes and submits the destination-side call (UnlockOnA
	// or MintOnB) authorized by signatures, returning its transaction hash.
	SubmitEffect(ctx context.Context, args EffectArgs, signatures [][]byte) (string, error)

	// AwaitConfirmations blocks until tx has accumulated n confirmations or
	// ctx is cancelled.
	AwaitConfirmations(ctx context.Context, tx string, n uint64) (bool, error)

	// CurrentHeight returns this chain's current head height.
	CurrentHeight(ctx context.Context) (uint64, error)
}

// EffectArgs is the chain-agnostic argument bundle for an outbound call;
// exactly one side's fields are meaningful depending on which Client the
// caller holds.
type EffectArgs struct {
	Recipient []byte // 20B on Chain-A, 32B on Chain-B
	Token     []byte // token_A, 20B
	AssetID   uint32 // Chain-B only
	Amount    []byte // big-endian, minimal length (big.Int.Bytes)
	SrcTx     string
}
