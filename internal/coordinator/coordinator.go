// Package coordinator drains the event queue the watchers fill,
// deduplicates against the processed set, drives each event through the
// signing session manager and the threshold primitive, and submits the
// resulting aggregated signature to the destination chain client.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/bridge"
	"github.com/bridgerelay/coordinator/internal/chain"
	"github.com/bridgerelay/coordinator/internal/metrics"
	"github.com/bridgerelay/coordinator/internal/queue"
	"github.com/bridgerelay/coordinator/internal/session"
	"github.com/bridgerelay/coordinator/internal/store"
	"github.com/bridgerelay/coordinator/internal/threshold"
)

// Config tunes one Coordinator instance.
type Config struct {
	ValidatorMode    bool
	ThresholdCfg     threshold.Config
	SignatureTimeout time.Duration
	NonceSeed        []byte
	PollInterval     time.Duration // how often the finalizer polls a session for readiness
}

// Coordinator dispatches events end to end. One instance runs per process;
// ChainA/ChainB clients, the store, and the token map are shared with the
// watchers that feed its queue.
type Coordinator struct {
	cfg       Config
	queue     *queue.Queue
	store     store.Store
	sessions  *session.Manager
	tokens    *bridge.TokenMap
	chainA    chain.Client
	chainB    chain.Client
	ownShare  threshold.KeyShare
	pubShares []threshold.PublicKeyShare
	metrics   *metrics.Collector
	logger    zerolog.Logger

	wg     sync.WaitGroup
	recent recentTransactions
}

// TxRecord is one completed cross-chain transfer, kept around only for the
// read façade's /transactions endpoint. The durable Store is the source of
// truth for IsProcessed/CountProcessed; this is a bounded, in-memory,
// best-effort feed on top of it, not a second ledger.
type TxRecord struct {
	SrcTx      string
	SrcChain   bridge.Chain
	DestTxHash string
	EffectedAt time.Time
}

const recentTransactionsCapacity = 500

// recentTransactions is a fixed-capacity ring buffer guarded by its own
// mutex so the API façade (read-only, high concurrency) never contends
// with handleEvent's per-session locks.
type recentTransactions struct {
	mu      sync.RWMutex
	records []TxRecord
}

func (r *recentTransactions) add(rec TxRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if len(r.records) > recentTransactionsCapacity {
		r.records = r.records[len(r.records)-recentTransactionsCapacity:]
	}
}

// List returns up to limit records starting at page*limit, most recent
// first.
func (r *recentTransactions) List(page, limit int) []TxRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	// most-recent-first view without mutating the underlying slice
	reversed := make([]TxRecord, len(r.records))
	for i, rec := range r.records {
		reversed[len(r.records)-1-i] = rec
	}
	start := page * limit
	if start >= len(reversed) {
		return nil
	}
	end := start + limit
	if end > len(reversed) {
		end = len(reversed)
	}
	return reversed[start:end]
}

func (r *recentTransactions) Find(srcTx string) (TxRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.SrcTx == srcTx {
			return rec, true
		}
	}
	return TxRecord{}, false
}

// New builds a Coordinator. ownShare and pubShares are unused (zero value
// accepted) when cfg.ValidatorMode is false: a non-validator instance only
// records events for the read façade and never participates in signing or
// submission.
func New(
	cfg Config,
	q *queue.Queue,
	st store.Store,
	sessions *session.Manager,
	tokens *bridge.TokenMap,
	chainA, chainB chain.Client,
	ownShare threshold.KeyShare,
	pubShares []threshold.PublicKeyShare,
	mc *metrics.Collector,
	logger zerolog.Logger,
) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if mc != nil {
		mc.ActiveValidators.Set(float64(len(pubShares)))
	}
	return &Coordinator{
		cfg:       cfg,
		queue:     q,
		store:     st,
		sessions:  sessions,
		tokens:    tokens,
		chainA:    chainA,
		chainB:    chainB,
		ownShare:  ownShare,
		pubShares: pubShares,
		metrics:   mc,
		logger:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// Run drains the queue until ctx is cancelled. Each event is handled in its
// own goroutine (tracked by wg for Shutdown to drain): ordering across
// events is not material, and an event whose signing session is still
// accumulating partials must not block the next event's store-and-request
// step.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.queue.Events():
			if !ok {
				return nil
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				if err := c.handleEvent(ctx, ev); err != nil {
					c.logger.Error().Err(err).Str("src_tx", ev.SrcTx()).Msg("event handling failed; the event is not re-queued")
				}
			}()
		}
	}
}

// Shutdown waits up to the signature timeout for in-flight handlers to
// finish, then closes the store. It does not stop Run itself; Run stops
// taking new events when its ctx is cancelled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timeout := c.cfg.SignatureTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn().Msg("shutdown timed out waiting for in-flight signing sessions to drain")
	case <-ctx.Done():
	}
	return c.store.Close()
}

// handleEvent checks processed, stores the event, opens/joins the signing
// session, contributes this validator's own partial, and hands off to
// finalize for submission.
func (c *Coordinator) handleEvent(ctx context.Context, ev *bridge.BridgeEvent) error {
	srcChain := ev.SourceChain()
	srcTx := ev.SrcTx()
	log := c.logger.With().Str("src_tx", srcTx).Str("chain", string(srcChain)).Logger()

	processed, err := c.store.IsProcessed(ctx, srcChain, srcTx)
	if err != nil {
		return errors.Wrap(err, "coordinator: check processed set")
	}
	if processed {
		log.Debug().Msg("duplicate event, dropping")
		return nil
	}

	if err := c.store.InsertEvent(ctx, ev); err != nil {
		return errors.Wrap(err, "coordinator: insert event")
	}

	if !c.cfg.ValidatorMode {
		return nil
	}

	message, err := bridge.SigningMessage(ev, c.tokens)
	if err != nil {
		log.Warn().Err(err).Msg("cannot build signing message, skipping (cursor already advanced)")
		return nil
	}

	nonce, err := threshold.DeriveSessionNonce(c.cfg.ThresholdCfg, c.cfg.ThresholdCfg.Total, c.cfg.NonceSeed, srcTx)
	if err != nil {
		return errors.Wrap(err, "coordinator: derive session nonce")
	}

	c.sessions.OpenOrJoin(srcTx, message, nonce.R, nonce.Shares[c.ownShare.Index], c.pubShares)

	partial, err := threshold.PartialSign(c.ownShare, nonce.Shares[c.ownShare.Index], nonce.R, message, srcTx)
	if err != nil {
		return errors.Wrap(err, "coordinator: compute own partial")
	}
	if err := c.sessions.AddPartial(srcTx, partial); err != nil && !errors.Is(err, threshold.ErrDuplicateSignature) {
		log.Warn().Err(err).Msg("failed to admit own partial")
	}
	if err := c.sessions.BroadcastOwn(ctx, srcTx, partial); err != nil {
		log.Warn().Err(err).Msg("failed to broadcast own partial")
	}
	if c.metrics != nil {
		c.metrics.PendingSignatures.Inc()
	}

	return c.finalize(ctx, ev, srcChain, srcTx, log)
}

// finalize polls the session manager until the aggregate is ready or the
// signature timeout elapses, then submits to the destination chain and
// marks the transfer processed. A crash anywhere in this function is safe
// to replay: the destination chain rejects a duplicate submission (treated
// as success) and MarkProcessed is itself idempotent.
func (c *Coordinator) finalize(ctx context.Context, ev *bridge.BridgeEvent, srcChain bridge.Chain, srcTx string, log zerolog.Logger) error {
	deadline := time.Now().Add(c.cfg.SignatureTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var agg threshold.AggregatedSignature
	for {
		result, ready, err := c.sessions.Result(srcTx)
		if err != nil {
			return errors.Wrap(err, "coordinator: poll session result")
		}
		if ready {
			agg = result
			break
		}
		if time.Now().After(deadline) {
			log.Warn().Msg("signing session did not reach threshold before timeout, abandoning for this cycle")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if c.metrics != nil {
		c.metrics.PendingSignatures.Dec()
	}

	args, destClient, err := c.effectArgs(ev, agg)
	if err != nil {
		return errors.Wrap(err, "coordinator: build effect args")
	}

	sigBytes := [][]byte{agg.Bytes()}
	txHash, err := destClient.SubmitEffect(ctx, args, sigBytes)
	if err != nil {
		var subErr *chain.SubmissionError
		if errors.As(err, &subErr) {
			switch subErr.Class {
			case chain.ClassAlreadyProcessed:
				log.Info().Msg("destination chain already has this transfer, treating as success")
			case chain.ClassTransient:
				return errors.Wrap(err, "coordinator: transient submission failure, not retried")
			case chain.ClassPermanent:
				if c.metrics != nil {
					c.metrics.SubmissionFailures.WithLabelValues(string(destinationChain(srcChain)), "permanent").Inc()
				}
				return errors.Wrap(err, "coordinator: permanent submission failure, bridge is inconsistent")
			default:
				return errors.Wrap(err, "coordinator: submission failed")
			}
		} else {
			return errors.Wrap(err, "coordinator: submission failed")
		}
	} else {
		if _, err := destClient.AwaitConfirmations(ctx, txHash, confirmationsFor(srcChain)); err != nil {
			return errors.Wrap(err, "coordinator: await destination confirmations")
		}
	}

	if err := c.store.MarkProcessed(ctx, srcChain, srcTx); err != nil {
		return errors.Wrap(err, "coordinator: mark processed")
	}
	if c.metrics != nil {
		c.metrics.ProcessedTotal.WithLabelValues(string(srcChain)).Inc()
	}
	c.recent.add(TxRecord{SrcTx: srcTx, SrcChain: srcChain, DestTxHash: txHash, EffectedAt: time.Now()})
	log.Info().Str("tx_hash", txHash).Msg("cross-chain transfer effected")
	return nil
}

// RecentTransactions returns a page of recently effected transfers, most
// recent first, for the read façade's /transactions endpoint.
func (c *Coordinator) RecentTransactions(page, limit int) []TxRecord {
	return c.recent.List(page, limit)
}

// Transaction looks up one effected transfer by its src_tx idempotency key.
func (c *Coordinator) Transaction(srcTx string) (TxRecord, bool) {
	return c.recent.Find(srcTx)
}

// Validators returns the configured validator set's IDs for the read
// façade's /validators endpoint.
func (c *Coordinator) Validators() []threshold.ValidatorID {
	ids := make([]threshold.ValidatorID, 0, len(c.pubShares))
	for _, ps := range c.pubShares {
		ids = append(ids, ps.ValidatorID)
	}
	return ids
}

// effectArgs resolves ev (plus the token map, for the asset<->token
// translation it requires) into the destination chain's call arguments and
// picks which chain.Client submits them.
func (c *Coordinator) effectArgs(ev *bridge.BridgeEvent, agg threshold.AggregatedSignature) (chain.EffectArgs, chain.Client, error) {
	switch ev.Kind {
	case bridge.KindLockOnA:
		assetID, err := c.tokens.AssetIDFor(ev.Lock.TokenA)
		if err != nil {
			return chain.EffectArgs{}, nil, err
		}
		return chain.EffectArgs{
			Recipient: ev.Lock.RecipientB[:],
			Token:     ev.Lock.TokenA[:],
			AssetID:   assetID,
			Amount:    ev.Lock.Amount.Bytes(),
			SrcTx:     ev.Lock.SrcTx,
		}, c.chainB, nil
	case bridge.KindBurnOnB:
		tokenA, err := c.tokens.TokenFor(ev.Burn.AssetID)
		if err != nil {
			return chain.EffectArgs{}, nil, err
		}
		return chain.EffectArgs{
			Recipient: ev.Burn.RecipientA[:],
			Token:     tokenA[:],
			Amount:    ev.Burn.Amount.Bytes(),
			SrcTx:     ev.Burn.SrcTx,
		}, c.chainA, nil
	default:
		return chain.EffectArgs{}, nil, bridge.ErrMalformedEvent
	}
}

func destinationChain(src bridge.Chain) bridge.Chain {
	if src == bridge.ChainA {
		return bridge.ChainB
	}
	return bridge.ChainA
}

// confirmationsFor is a conservative default await depth for the
// destination chain; real per-chain confirmation counts are supplied to
// the watchers and chain clients directly via their own Config structs.
// Submission confirmation here only needs to be "enough to be safe against
// a typical reorg", not configuration-identical to the source watcher.
func confirmationsFor(bridge.Chain) uint64 { return 1 }

// Stats is the coordinator's snapshot for the read façade's /stats
// endpoint.
type Stats struct {
	ProcessedA        uint64
	ProcessedB        uint64
	PendingSignatures int
	ActiveValidators  int
}

// CollectStats gathers a Stats snapshot from the store and validator set.
func (c *Coordinator) CollectStats(ctx context.Context) (Stats, error) {
	processedA, err := c.store.CountProcessed(ctx, bridge.ChainA)
	if err != nil {
		return Stats{}, err
	}
	processedB, err := c.store.CountProcessed(ctx, bridge.ChainB)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ProcessedA:       processedA,
		ProcessedB:       processedB,
		ActiveValidators: len(c.pubShares),
	}, nil
}
