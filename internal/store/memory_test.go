package store_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgerelay/coordinator/internal/bridge"
	"github.com/bridgerelay/coordinator/internal/store"
)

func TestMemoryInsertEventIsIdempotent(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	ev := &bridge.BridgeEvent{Kind: bridge.KindLockOnA, Lock: &bridge.LockOnA{
		Amount: big.NewInt(10), SrcTx: "0x1", SrcBlock: 5,
	}}
	require.NoError(t, m.InsertEvent(ctx, ev))
	require.NoError(t, m.InsertEvent(ctx, ev))
}

func TestMemoryProcessedSetIsMonotone(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	ok, err := m.IsProcessed(ctx, bridge.ChainA, "0x1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.MarkProcessed(ctx, bridge.ChainA, "0x1"))
	require.NoError(t, m.MarkProcessed(ctx, bridge.ChainA, "0x1")) // idempotent

	ok, err = m.IsProcessed(ctx, bridge.ChainA, "0x1")
	require.NoError(t, err)
	require.True(t, ok)

	count, err := m.CountProcessed(ctx, bridge.ChainA)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestMemoryCursorNeverDecreases(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AdvanceCursor(ctx, bridge.ChainA, 100))
	require.NoError(t, m.AdvanceCursor(ctx, bridge.ChainA, 50))

	height, err := m.Cursor(ctx, bridge.ChainA)
	require.NoError(t, err)
	require.Equal(t, uint64(100), height)
}

func TestMemoryTokenRoundTrip(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	token := [20]byte{1, 2, 3}

	require.NoError(t, m.RegisterToken(ctx, token, 9))
	tokens, err := m.Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(9), tokens[token])
}
