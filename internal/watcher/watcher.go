// Package watcher runs one independent poll loop per chain, advancing a
// persisted cursor and publishing confirmed events into a bounded queue.
// A single generic Watcher serves both chains; only the ChainClient
// implementation differs.
package watcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/bridge"
	"github.com/bridgerelay/coordinator/internal/queue"
	"github.com/bridgerelay/coordinator/internal/store"
)

// ChainClient is the inbound half of a chain integration: enough to poll
// head height and fetch normalized events in a block range. chain.EVMClient
// and chain.SubstrateClient each implement this alongside their outbound
// chain.Client surface.
type ChainClient interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	EventsInRange(ctx context.Context, from, to uint64) ([]*bridge.BridgeEvent, error)
}

// Config tunes one Watcher instance.
type Config struct {
	Chain         bridge.Chain
	Confirmations uint64
	PollInterval  time.Duration
	MaxRetries    int
}

// Watcher runs the cursor/safe-height/fetch/normalize/insert/publish loop
// shared by both chains' concrete clients.
type Watcher struct {
	cfg    Config
	client ChainClient
	store  store.Store
	queue  *queue.Queue
	logger zerolog.Logger
}

func New(cfg Config, client ChainClient, st store.Store, q *queue.Queue, logger zerolog.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		client: client,
		store:  st,
		queue:  q,
		logger: logger.With().Str("component", "watcher").Str("chain", string(cfg.Chain)).Logger(),
	}
}

// Run blocks until ctx is cancelled, polling at cfg.PollInterval. With a
// positive cfg.MaxRetries it also returns once more than that many
// consecutive polls have failed.
func (w *Watcher) Run(ctx context.Context) error {
	retries := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := w.pollOnce(ctx)
		if err != nil {
			retries++
			if w.cfg.MaxRetries > 0 && retries > w.cfg.MaxRetries {
				return errors.Wrap(err, "watcher: exceeded max retries")
			}
			backoff := backoffDelay(retries)
			w.logger.Warn().Err(err).Int("attempt", retries).Dur("backoff", backoff).Msg("poll failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		retries = 0
		if !advanced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

// pollOnce performs one iteration: fetch confirmed-safe events since the
// last cursor, normalize, insert idempotently, publish, advance the cursor.
// It never advances the cursor past an event it failed to enqueue: the
// queue push happens before AdvanceCursor, and a publish failure aborts the
// whole batch before the cursor moves.
func (w *Watcher) pollOnce(ctx context.Context) (bool, error) {
	last, err := w.store.Cursor(ctx, w.cfg.Chain)
	if err != nil {
		return false, errors.Wrap(err, "watcher: read cursor")
	}
	head, err := w.client.CurrentHeight(ctx)
	if err != nil {
		return false, errors.Wrap(err, "watcher: current height")
	}
	if head < w.cfg.Confirmations {
		return false, nil
	}
	safe := head - w.cfg.Confirmations
	if safe <= last {
		return false, nil
	}

	events, err := w.client.EventsInRange(ctx, last+1, safe)
	if err != nil {
		return false, errors.Wrap(err, "watcher: fetch events")
	}

	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			w.logger.Warn().Err(err).Str("src_tx", ev.SrcTx()).Msg("dropping malformed event")
			continue
		}
		if err := w.store.InsertEvent(ctx, ev); err != nil {
			return false, errors.Wrap(err, "watcher: insert event")
		}
		if err := w.queue.Push(ctx, ev); err != nil {
			return false, errors.Wrap(err, "watcher: publish event")
		}
	}

	if err := w.store.AdvanceCursor(ctx, w.cfg.Chain, safe); err != nil {
		return false, errors.Wrap(err, "watcher: advance cursor")
	}
	return true, nil
}

func backoffDelay(attempt int) time.Duration {
	base := time.Second
	max := 30 * time.Second
	d := base << uint(attempt)
	if d <= 0 || d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}
