package coordinator_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bridgerelay/coordinator/internal/bridge"
	"github.com/bridgerelay/coordinator/internal/chain"
	"github.com/bridgerelay/coordinator/internal/coordinator"
	"github.com/bridgerelay/coordinator/internal/queue"
	"github.com/bridgerelay/coordinator/internal/session"
	"github.com/bridgerelay/coordinator/internal/store"
	"github.com/bridgerelay/coordinator/internal/threshold"
	"github.com/bridgerelay/coordinator/internal/transport"
)

// fakeClient is a minimal chain.Client recording every submission, used in
// place of chain.EVMClient/chain.SubstrateClient so the coordinator's
// signing-and-submit path can be exercised without any live RPC endpoint.
type fakeClient struct {
	mu        sync.Mutex
	submitted []chain.EffectArgs
	nextErr   error
}

func (f *fakeClient) SubmitEffect(_ context.Context, args chain.EffectArgs, _ [][]byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextErr != nil {
		return "", f.nextErr
	}
	f.submitted = append(f.submitted, args)
	return "0xdeadbeef", nil
}

func (f *fakeClient) AwaitConfirmations(context.Context, string, uint64) (bool, error) {
	return true, nil
}

func (f *fakeClient) CurrentHeight(context.Context) (uint64, error) { return 100, nil }

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func newSingleValidatorCoordinator(t *testing.T, validatorMode bool) (*coordinator.Coordinator, *queue.Queue, *fakeClient, *fakeClient) {
	t.Helper()
	cfg := threshold.Config{Threshold: 1, Total: 1, Scheme: threshold.SchemeThreshold}
	shares, _, err := threshold.GenerateKeyShares(cfg, []threshold.ValidatorID{"v1"})
	require.NoError(t, err)
	own := shares["v1"]
	pubShares := []threshold.PublicKeyShare{{ValidatorID: own.ValidatorID, Index: own.Index, Point: own.PublicShare}}

	st := store.NewMemory()
	tokens := bridge.NewTokenMap()
	token := [20]byte{7}
	require.NoError(t, tokens.Register(token, 42))

	tr := transport.NewInMemory()
	sessions := session.NewManager(cfg, tr, time.Second, zerolog.Nop())

	q := queue.New(16)
	chainA := &fakeClient{}
	chainB := &fakeClient{}

	c := coordinator.New(coordinator.Config{
		ValidatorMode:    validatorMode,
		ThresholdCfg:     cfg,
		SignatureTimeout: 2 * time.Second,
		NonceSeed:        []byte("test-seed"),
		PollInterval:     5 * time.Millisecond,
	}, q, st, sessions, tokens, chainA, chainB, own, pubShares, nil, zerolog.Nop())

	go func() { _ = sessions.ConsumeTransport(context.Background()) }()

	return c, q, chainA, chainB
}

func lockEvent(srcTx string) *bridge.BridgeEvent {
	return &bridge.BridgeEvent{Kind: bridge.KindLockOnA, Lock: &bridge.LockOnA{
		TokenA:     [20]byte{7},
		Amount:     big.NewInt(500),
		RecipientB: [32]byte{1},
		SrcTx:      srcTx,
		SrcBlock:   1,
	}}
}

func TestCoordinatorEffectsAndMarksProcessed(t *testing.T) {
	c, q, _, chainB := newSingleValidatorCoordinator(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.NoError(t, q.Push(ctx, lockEvent("0xabc")))

	require.Eventually(t, func() bool { return chainB.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := c.Transaction("0xabc")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinatorDropsDuplicateEvent(t *testing.T) {
	c, q, _, chainB := newSingleValidatorCoordinator(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.NoError(t, q.Push(ctx, lockEvent("0xdup")))
	require.Eventually(t, func() bool { return chainB.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Push(ctx, lockEvent("0xdup")))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, chainB.count())
}

func TestCoordinatorNonValidatorModeOnlyRecordsEvent(t *testing.T) {
	c, q, _, chainB := newSingleValidatorCoordinator(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.NoError(t, q.Push(ctx, lockEvent("0xobs")))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, chainB.count())

	stats, err := c.CollectStats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.ProcessedA)
}
