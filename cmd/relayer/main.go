// Command relayer runs one bridge coordinator process: it loads its
// configuration, wires the watchers, signing session manager, coordinator,
// and read façade, then blocks until SIGINT/SIGTERM, draining in-flight
// signing sessions before exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/api"
	"github.com/bridgerelay/coordinator/internal/bridge"
	"github.com/bridgerelay/coordinator/internal/chain"
	"github.com/bridgerelay/coordinator/internal/config"
	"github.com/bridgerelay/coordinator/internal/coordinator"
	"github.com/bridgerelay/coordinator/internal/metrics"
	"github.com/bridgerelay/coordinator/internal/queue"
	"github.com/bridgerelay/coordinator/internal/session"
	"github.com/bridgerelay/coordinator/internal/store"
	"github.com/bridgerelay/coordinator/internal/threshold"
	"github.com/bridgerelay/coordinator/internal/transport"
	"github.com/bridgerelay/coordinator/internal/watcher"
)

// exit codes per the coordinator's operational contract: 0 clean shutdown,
// 1 configuration error, 2 unrecoverable/fatal inconsistency.
const (
	exitOK          = 0
	exitConfigError = 1
	exitFatal       = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "relayer: configuration error:", err)
		return exitConfigError
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Str("service", "bridge-coordinator").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return exitConfigError
	}

	tokens := bridge.NewTokenMap()
	existing, err := st.Tokens(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to hydrate token map")
		return exitFatal
	}
	for token, assetID := range existing {
		if err := tokens.Register(token, assetID); err != nil {
			logger.Error().Err(err).Msg("inconsistent token map in store")
			return exitFatal
		}
	}

	registry := prometheus.NewRegistry()
	mc := metrics.New(registry)

	tr, err := openTransport(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open signature transport")
		return exitConfigError
	}

	thresholdCfg := threshold.Config{
		Threshold: cfg.Threshold.K,
		Total:     cfg.Threshold.N,
		Scheme:    cfg.Threshold.Scheme,
	}
	sessions := session.NewManager(thresholdCfg, tr, cfg.Threshold.SignatureTimeout, logger)

	var ownShare threshold.KeyShare
	var pubShares []threshold.PublicKeyShare
	if cfg.Validator.Enabled {
		ownShare = threshold.KeyShare{
			ValidatorID: cfg.Validator.ID,
			Config:      thresholdCfg,
		}
		// Real deployments load PrivateShare/PublicShare/Index and the
		// rest of pubShares from the offline keygen ceremony's output
		// (threshold.GenerateKeyShares, run once out of band); wiring that
		// load path to a concrete file/secret store is deployment-specific
		// and left to the operator.
	}

	chainAClient, err := chain.NewEVMClient(chain.EVMConfig{
		RPCURL:         cfg.ChainA.RPCURL,
		ChainID:        cfg.ChainA.ChainID,
		BridgeContract: cfg.ChainA.BridgeContract,
		Confirmations:  cfg.ChainA.Confirmations,
		GasLimit:       cfg.ChainA.GasLimit,
		GasPrice:       cfg.ChainA.GasPrice,
		PrivateKeyHex:  cfg.ChainA.PrivateKey,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build chain-a client")
		return exitConfigError
	}

	chainBClient, err := newSubstrateClient(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build chain-b client")
		return exitConfigError
	}

	qA := queue.New(1024)
	qB := queue.New(1024)
	watcherA := watcher.New(watcher.Config{
		Chain:         bridge.ChainA,
		Confirmations: cfg.ChainA.Confirmations,
		PollInterval:  cfg.PollInterval,
		MaxRetries:    cfg.MaxRetries,
	}, chainAClient, st, qA, logger)
	watcherB := watcher.New(watcher.Config{
		Chain:         bridge.ChainB,
		Confirmations: cfg.ChainB.Confirmations,
		PollInterval:  cfg.PollInterval,
		MaxRetries:    cfg.MaxRetries,
	}, chainBClient, st, qB, logger)

	coord := coordinator.New(coordinator.Config{
		ValidatorMode:    cfg.Validator.Enabled,
		ThresholdCfg:     thresholdCfg,
		SignatureTimeout: cfg.Threshold.SignatureTimeout,
		NonceSeed:        []byte(cfg.Validator.PrivateKey),
		PollInterval:     500 * time.Millisecond,
	}, mergeQueues(ctx, qA, qB), st, sessions, tokens, chainAClient, chainBClient, ownShare, pubShares, mc, logger)

	var wg sync.WaitGroup
	runGoroutine(&wg, func() error { return watcherA.Run(ctx) }, "watcher-a", logger)
	runGoroutine(&wg, func() error { return watcherB.Run(ctx) }, "watcher-b", logger)
	runGoroutine(&wg, func() error { return sessions.ConsumeTransport(ctx) }, "session-transport", logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.RunReaper(ctx, cfg.Threshold.SignatureTimeout)
	}()
	runGoroutine(&wg, func() error { return coord.Run(ctx) }, "coordinator", logger)

	apiServer := api.New(coord, chainAClient, chainBClient, registry, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(ctx, addr); err != nil {
			logger.Error().Err(err).Msg("api server exited with error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down, draining in-flight work")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Threshold.SignatureTimeout+5*time.Second)
	defer shutdownCancel()
	if err := coord.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("coordinator shutdown reported an error")
	}
	wg.Wait()
	return exitOK
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.OpenPostgres(ctx, cfg.DatabaseURL)
}

func openTransport(cfg *config.Config) (transport.SignatureTransport, error) {
	if !cfg.Validator.Enabled {
		return transport.NewInMemory(), nil
	}
	return transport.NewInMemory(), nil
}

func newSubstrateClient(cfg *config.Config, logger zerolog.Logger) (*chain.SubstrateClient, error) {
	return nil, fmt.Errorf("relayer: no concrete chain.SubstrateRPC transport wired; " +
		"provide one (see internal/chain/substrate.go's SubstrateRPC interface) before running against a live Chain-B endpoint")
}

// mergeQueues fans both watchers' queues into a single queue the
// coordinator drains from, since Coordinator only knows about one
// *queue.Queue. A dedicated goroutine per source queue forwards events
// until ctx is cancelled.
func mergeQueues(ctx context.Context, qA, qB *queue.Queue) *queue.Queue {
	merged := queue.New(2048)
	forward := func(q *queue.Queue) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-q.Events():
				if !ok {
					return
				}
				if err := merged.Push(ctx, ev); err != nil {
					return
				}
			}
		}
	}
	go forward(qA)
	go forward(qB)
	return merged
}

func runGoroutine(wg *sync.WaitGroup, fn func() error, name string, logger zerolog.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(); err != nil && err != context.Canceled {
			logger.Error().Err(err).Str("goroutine", name).Msg("goroutine exited with error")
		}
	}()
}
