// Package store defines the durable state the coordinator depends on for
// exactly-once delivery: observed events, the processed set, per-chain
// cursors, and the token map.
package store

import (
	"context"
	"errors"

	"github.com/bridgerelay/coordinator/internal/bridge"
)

// ErrNotFound distinguishes "absent" from a genuine connectivity error.
// Neither Memory nor Postgres returns it: Cursor reports 0 for a chain with
// no recorded cursor, and IsProcessed reports false for an unknown key.
var ErrNotFound = errors.New("store: not found")

// Store is the durable interface every coordinator path depends on. Every
// mutating method is idempotent on its natural key: inserting or marking an
// already-present row is a no-op, never an error.
type Store interface {
	// InsertEvent idempotently records ev in events_A or events_B,
	// selected by ev.Kind.
	InsertEvent(ctx context.Context, ev *bridge.BridgeEvent) error

	// IsProcessed reports whether (chain, srcTx) is already in the
	// processed set.
	IsProcessed(ctx context.Context, chain bridge.Chain, srcTx string) (bool, error)

	// MarkProcessed idempotently adds (chain, srcTx) to the processed set.
	// Callers must only call this after the destination chain has
	// confirmed the effecting transaction.
	MarkProcessed(ctx context.Context, chain bridge.Chain, srcTx string) error

	// Cursor returns the last confirmed block height for chain, or 0 if
	// none has been recorded yet.
	Cursor(ctx context.Context, chain bridge.Chain) (uint64, error)

	// AdvanceCursor sets chain's cursor to height. Callers must never call
	// this with a height lower than the current cursor; implementations
	// may choose to enforce or simply trust this (the watcher is the only
	// caller and already enforces it).
	AdvanceCursor(ctx context.Context, chain bridge.Chain, height uint64) error

	// RegisterToken idempotently adds a token_A <-> asset_id mapping.
	RegisterToken(ctx context.Context, token [20]byte, assetID uint32) error

	// Tokens returns the full token map, used to hydrate an in-memory
	// bridge.TokenMap at startup.
	Tokens(ctx context.Context) (map[[20]byte]uint32, error)

	// CountProcessed returns the number of processed entries for chain,
	// backing the /stats façade.
	CountProcessed(ctx context.Context, chain bridge.Chain) (uint64, error)

	Close() error
}
