package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/bridge"
)

// SubstrateConfig holds the Chain-B wiring: a pallet-level websocket RPC
// endpoint, the bridge pallet's name, and the signing seed for the relayer's
// own submission account (distinct from any threshold KeyShare).
type SubstrateConfig struct {
	WSURL         string
	PalletName    string
	Confirmations uint64
	AccountSeed   string
}

// SubstrateRPC is the minimal pallet-facing transport SubstrateClient needs.
// No SCALE-codec or substrate-RPC client exists anywhere in this module's
// dependency set, so SubstrateClient talks to it through this narrow
// interface and encodes calls itself (see encodeMintOnB) instead of
// depending on one; a concrete implementation lives outside this package's
// test scope, mirroring how the reference relayer's polkadot.rs wraps
// subxt behind its own RelayerError taxonomy.
type SubstrateRPC interface {
	SubmitExtrinsic(ctx context.Context, palletName, call string, args []byte) (string, error)
	FinalizedHeight(ctx context.Context) (uint64, error)
	ExtrinsicFinalizedAt(ctx context.Context, tx string) (uint64, bool, error)

	// BurnEventsInRange returns every Burned event the bridge pallet emitted
	// in [from, to], already decoded from SCALE by the concrete transport
	// (outside this package's scope; see encodeMintOnB's doc comment for why
	// no SCALE codec lives in this module's dependency set).
	BurnEventsInRange(ctx context.Context, from, to uint64) ([]BurnEvent, error)
}

// BurnEvent is one decoded Burned(user, asset_id, amount, recipient_a,
// src_tx, src_block) emission from the bridge pallet.
type BurnEvent struct {
	UserB      [32]byte
	AssetID    uint32
	Amount     []byte
	RecipientA [20]byte
	SrcTx      string
	SrcBlock   uint64
}

// SubstrateClient is the Chain-B Client.
type SubstrateClient struct {
	cfg    SubstrateConfig
	rpc    SubstrateRPC
	logger zerolog.Logger
}

func NewSubstrateClient(cfg SubstrateConfig, rpc SubstrateRPC, logger zerolog.Logger) *SubstrateClient {
	return &SubstrateClient{cfg: cfg, rpc: rpc, logger: logger.With().Str("component", "chain_b").Logger()}
}

func (c *SubstrateClient) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.FinalizedHeight(ctx)
	if err != nil {
		return 0, NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-b: current height"))
	}
	return height, nil
}

// encodeMintOnB builds the call body for MintOnB(recipient: 32B, eth_token:
// 20B, amount: u128, src_tx_A: 32B, signatures: bytes[]) as a direct
// length-prefixed byte encoding: each fixed-width field back to back, the
// signature list as a u32 count followed by u32-length-prefixed entries.
// This is NOT a general SCALE codec — it only needs to round-trip this one
// call shape, and no SCALE library exists in the retrieved dependency pack
// to reach for instead (see DESIGN.md).
func encodeMintOnB(args EffectArgs, signatures [][]byte) ([]byte, error) {
	if len(args.Recipient) != 32 || len(args.Token) != 20 {
		return nil, fmt.Errorf("chain-b: expected 32-byte recipient/20-byte token, got %d/%d", len(args.Recipient), len(args.Token))
	}
	amount := make([]byte, 16)
	copy(amount[16-len(args.Amount):], args.Amount)
	var srcTxA [32]byte
	copy(srcTxA[:], []byte(args.SrcTx))

	var buf []byte
	buf = append(buf, args.Recipient...)
	buf = append(buf, args.Token...)
	buf = append(buf, amount...)
	buf = append(buf, srcTxA[:]...)

	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(signatures)))
	buf = append(buf, count...)
	for _, sig := range signatures {
		length := make([]byte, 4)
		binary.BigEndian.PutUint32(length, uint32(len(sig)))
		buf = append(buf, length...)
		buf = append(buf, sig...)
	}
	return buf, nil
}

func (c *SubstrateClient) SubmitEffect(ctx context.Context, args EffectArgs, signatures [][]byte) (string, error) {
	encoded, err := encodeMintOnB(args, signatures)
	if err != nil {
		return "", NewSubmissionError(ClassPermanent, err)
	}
	tx, err := c.rpc.SubmitExtrinsic(ctx, c.cfg.PalletName, "mint_on_b", encoded)
	if err != nil {
		return "", NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-b: submit extrinsic"))
	}
	return tx, nil
}

func (c *SubstrateClient) AwaitConfirmations(ctx context.Context, tx string, n uint64) (bool, error) {
	for {
		includedAt, ok, err := c.rpc.ExtrinsicFinalizedAt(ctx, tx)
		if err != nil {
			return false, NewSubmissionError(ClassTransient, err)
		}
		if ok {
			head, herr := c.rpc.FinalizedHeight(ctx)
			if herr != nil {
				return false, NewSubmissionError(ClassTransient, herr)
			}
			if head >= includedAt+n {
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// EventsInRange fulfills watcher.ChainClient by normalizing the pallet's
// decoded Burned events into BridgeEvents.
func (c *SubstrateClient) EventsInRange(ctx context.Context, from, to uint64) ([]*bridge.BridgeEvent, error) {
	raw, err := c.rpc.BurnEventsInRange(ctx, from, to)
	if err != nil {
		return nil, NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-b: fetch burn events"))
	}
	events := make([]*bridge.BridgeEvent, 0, len(raw))
	for _, r := range raw {
		amount := new(big.Int).SetBytes(r.Amount)
		events = append(events, &bridge.BridgeEvent{
			Kind: bridge.KindBurnOnB,
			Burn: &bridge.BurnOnB{
				UserB:      r.UserB,
				AssetID:    r.AssetID,
				Amount:     amount,
				RecipientA: r.RecipientA,
				SrcTx:      r.SrcTx,
				SrcBlock:   r.SrcBlock,
			},
		})
	}
	return events, nil
}

var (
	_ Client = (*EVMClient)(nil)
	_ Client = (*SubstrateClient)(nil)
)
