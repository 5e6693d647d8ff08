package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/bridge"
)

// bridgeContractABI declares the one outbound call this package ever
// encodes for Chain-A (UnlockOnA) plus the inbound event the watcher
// watches for (Locked).
const bridgeContractABI = `[{
	"name": "unlockOnA",
	"type": "function",
	"inputs": [
		{"name": "user", "type": "address"},
		{"name": "token", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "srcTxB", "type": "bytes32"},
		{"name": "signatures", "type": "bytes[]"}
	]
}, {
	"name": "Locked",
	"type": "event",
	"inputs": [
		{"name": "user", "type": "address", "indexed": true},
		{"name": "token", "type": "address", "indexed": true},
		{"name": "amount", "type": "uint256", "indexed": false},
		{"name": "recipientB", "type": "bytes32", "indexed": false}
	]
}]`

// EVMConfig holds the Chain-A wiring the reference relayer scatters across
// ValidatorConfig/ChainConfig.
type EVMConfig struct {
	RPCURL         string
	ChainID        *big.Int
	BridgeContract common.Address
	Confirmations  uint64
	GasLimit       uint64
	GasPrice       *big.Int
	PrivateKeyHex  string
}

// EVMClient is the Chain-A Client, built on go-ethereum the way
// metabridge-hub's processor builds outbound EVM transactions, but with
// the placeholder gas/nonce handling there replaced with real RPC calls.
type EVMClient struct {
	cfg    EVMConfig
	rpc    *ethclient.Client
	abi    abi.ABI
	logger zerolog.Logger
}

func NewEVMClient(cfg EVMConfig, logger zerolog.Logger) (*EVMClient, error) {
	rpc, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "chain: dial chain-a rpc")
	}
	parsed, err := abi.JSON(strings.NewReader(bridgeContractABI))
	if err != nil {
		return nil, errors.Wrap(err, "chain: parse bridge abi")
	}
	return &EVMClient{
		cfg:    cfg,
		rpc:    rpc,
		abi:    parsed,
		logger: logger.With().Str("component", "chain_a").Logger(),
	}, nil
}

func (c *EVMClient) CurrentHeight(ctx context.Context) (uint64, error) {
	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-a: current height"))
	}
	return head, nil
}

// SubmitEffect encodes and submits UnlockOnA authorized by signatures. The
// signing key is the validator's own submission key, distinct from any
// threshold KeyShare; it pays gas and relays the already-aggregated
// signature, it does not participate in the threshold scheme itself.
func (c *EVMClient) SubmitEffect(ctx context.Context, args EffectArgs, signatures [][]byte) (string, error) {
	if len(args.Recipient) != 20 || len(args.Token) != 20 {
		return "", NewSubmissionError(ClassPermanent, fmt.Errorf("chain-a: expected 20-byte user/token, got %d/%d", len(args.Recipient), len(args.Token)))
	}
	var srcTxB [32]byte
	copy(srcTxB[:], []byte(args.SrcTx))

	data, err := c.abi.Pack("unlockOnA",
		common.BytesToAddress(args.Recipient),
		common.BytesToAddress(args.Token),
		new(big.Int).SetBytes(args.Amount),
		srcTxB,
		signatures,
	)
	if err != nil {
		return "", NewSubmissionError(ClassPermanent, errors.Wrap(err, "chain-a: pack unlockOnA"))
	}

	key, err := crypto.HexToECDSA(c.cfg.PrivateKeyHex)
	if err != nil {
		return "", NewSubmissionError(ClassPermanent, errors.Wrap(err, "chain-a: parse submission key"))
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, crypto.PubkeyToAddress(key.PublicKey))
	if err != nil {
		return "", NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-a: fetch nonce"))
	}

	tx := ethtypes.NewTransaction(nonce, c.cfg.BridgeContract, big.NewInt(0), c.cfg.GasLimit, c.cfg.GasPrice, data)
	signer := ethtypes.NewEIP155Signer(c.cfg.ChainID)
	signedTx, err := ethtypes.SignTx(tx, signer, key)
	if err != nil {
		return "", NewSubmissionError(ClassPermanent, errors.Wrap(err, "chain-a: sign tx"))
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		if isAlreadyKnown(err) {
			return signedTx.Hash().Hex(), nil
		}
		return "", NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-a: send tx"))
	}
	return signedTx.Hash().Hex(), nil
}

func (c *EVMClient) AwaitConfirmations(ctx context.Context, tx string, n uint64) (bool, error) {
	hash := common.HexToHash(tx)
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			head, herr := c.rpc.BlockNumber(ctx)
			if herr != nil {
				return false, NewSubmissionError(ClassTransient, herr)
			}
			if head >= receipt.BlockNumber.Uint64()+n {
				return receipt.Status == ethtypes.ReceiptStatusSuccessful, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// EventsInRange fulfills watcher.ChainClient by filtering Locked logs
// emitted by the bridge contract in [from, to] and normalizing each into a
// BridgeEvent, the same shape metabridge-hub's processor builds from a
// decoded log before handing it to its own relay step.
func (c *EVMClient) EventsInRange(ctx context.Context, from, to uint64) ([]*bridge.BridgeEvent, error) {
	lockedTopic := c.abi.Events["Locked"].ID
	logs, err := c.rpc.FilterLogs(ctx, ethereumFilterQuery(c.cfg.BridgeContract, lockedTopic, from, to))
	if err != nil {
		return nil, NewSubmissionError(ClassTransient, errors.Wrap(err, "chain-a: filter logs"))
	}

	events := make([]*bridge.BridgeEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		unpacked, err := c.abi.Unpack("Locked", lg.Data)
		if err != nil {
			return nil, errors.Wrap(err, "chain-a: unpack Locked log")
		}
		amount, ok := unpacked[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("chain-a: unexpected Locked.amount type %T", unpacked[0])
		}
		var recipientB [32]byte
		if rb, ok := unpacked[1].([32]byte); ok {
			recipientB = rb
		}

		ev := &bridge.BridgeEvent{
			Kind: bridge.KindLockOnA,
			Lock: &bridge.LockOnA{
				UserA:      common.HexToAddress(lg.Topics[1].Hex()),
				TokenA:     common.HexToAddress(lg.Topics[2].Hex()),
				Amount:     amount,
				RecipientB: recipientB,
				SrcTx:      lg.TxHash.Hex(),
				SrcBlock:   lg.BlockNumber,
			},
		}
		events = append(events, ev)
	}
	return events, nil
}

func isAlreadyKnown(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already known")
}

func ethereumFilterQuery(contract common.Address, topic common.Hash, from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{topic}},
	}
}
