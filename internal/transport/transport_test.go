package transport_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bridgerelay/coordinator/internal/threshold"
	"github.com/bridgerelay/coordinator/internal/transport"
)

func TestInMemoryBroadcastFansOutToAllSubscribers(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewInMemory()

	ch1, err := tr.Subscribe(ctx)
	require.NoError(t, err)
	ch2, err := tr.Subscribe(ctx)
	require.NoError(t, err)

	msg := transport.Message{
		SessionID:   "0x1",
		ValidatorID: "validator-a",
		Partial: threshold.PartialSignature{
			ValidatorID: "validator-a",
			SessionID:   "0x1",
			R:           big.NewInt(1),
			S:           big.NewInt(2),
		},
	}
	require.NoError(t, tr.Broadcast(ctx, msg))

	select {
	case got := <-ch1:
		require.Equal(t, msg.SessionID, got.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on ch1")
	}
	select {
	case got := <-ch2:
		require.Equal(t, msg.SessionID, got.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on ch2")
	}
}
