package chain

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSubstrateRPC struct {
	height     uint64
	extrinsics map[string]uint64
}

func (f *fakeSubstrateRPC) SubmitExtrinsic(_ context.Context, _, _ string, _ []byte) (string, error) {
	return "0xextrinsic", nil
}

func (f *fakeSubstrateRPC) FinalizedHeight(context.Context) (uint64, error) {
	return f.height, nil
}

func (f *fakeSubstrateRPC) ExtrinsicFinalizedAt(_ context.Context, tx string) (uint64, bool, error) {
	at, ok := f.extrinsics[tx]
	return at, ok, nil
}

func (f *fakeSubstrateRPC) BurnEventsInRange(context.Context, uint64, uint64) ([]BurnEvent, error) {
	return nil, nil
}

func TestSubstrateClientSubmitAndAwait(t *testing.T) {
	rpc := &fakeSubstrateRPC{height: 105, extrinsics: map[string]uint64{"0xextrinsic": 100}}
	client := NewSubstrateClient(SubstrateConfig{PalletName: "bridgeAssets", Confirmations: 3}, rpc, zerolog.Nop())

	tx, err := client.SubmitEffect(context.Background(), EffectArgs{
		Recipient: make([]byte, 32),
		Token:     make([]byte, 20),
		Amount:    []byte{100},
		SrcTx:     "0xsrc",
	}, [][]byte{{1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, "0xextrinsic", tx)

	ok, err := client.AwaitConfirmations(context.Background(), tx, 3)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEncodeMintOnBRejectsWrongWidths(t *testing.T) {
	_, err := encodeMintOnB(EffectArgs{Recipient: []byte{1}, Token: make([]byte, 20)}, nil)
	require.Error(t, err)
}
