package store

import (
	"context"
	"sync"

	"github.com/bridgerelay/coordinator/internal/bridge"
)

// Memory is an in-memory Store, used in tests; cmd/relayer always opens
// Postgres. It implements the same idempotency contract as Postgres.
type Memory struct {
	mu        sync.RWMutex
	eventsA   map[string]*bridge.LockOnA
	eventsB   map[string]*bridge.BurnOnB
	processed map[string]struct{}
	cursors   map[bridge.Chain]uint64
	tokenToID map[[20]byte]uint32
}

func NewMemory() *Memory {
	return &Memory{
		eventsA:   make(map[string]*bridge.LockOnA),
		eventsB:   make(map[string]*bridge.BurnOnB),
		processed: make(map[string]struct{}),
		cursors:   make(map[bridge.Chain]uint64),
		tokenToID: make(map[[20]byte]uint32),
	}
}

func processedKey(chain bridge.Chain, srcTx string) string {
	return string(chain) + ":" + srcTx
}

func (m *Memory) InsertEvent(_ context.Context, ev *bridge.BridgeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Kind {
	case bridge.KindLockOnA:
		if _, ok := m.eventsA[ev.Lock.SrcTx]; !ok {
			m.eventsA[ev.Lock.SrcTx] = ev.Lock
		}
	case bridge.KindBurnOnB:
		if _, ok := m.eventsB[ev.Burn.SrcTx]; !ok {
			m.eventsB[ev.Burn.SrcTx] = ev.Burn
		}
	}
	return nil
}

func (m *Memory) IsProcessed(_ context.Context, chain bridge.Chain, srcTx string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.processed[processedKey(chain, srcTx)]
	return ok, nil
}

func (m *Memory) MarkProcessed(_ context.Context, chain bridge.Chain, srcTx string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[processedKey(chain, srcTx)] = struct{}{}
	return nil
}

func (m *Memory) Cursor(_ context.Context, chain bridge.Chain) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[chain], nil
}

func (m *Memory) AdvanceCursor(_ context.Context, chain bridge.Chain, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height > m.cursors[chain] {
		m.cursors[chain] = height
	}
	return nil
}

func (m *Memory) RegisterToken(_ context.Context, token [20]byte, assetID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenToID[token] = assetID
	return nil
}

func (m *Memory) Tokens(_ context.Context) (map[[20]byte]uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[[20]byte]uint32, len(m.tokenToID))
	for k, v := range m.tokenToID {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) CountProcessed(_ context.Context, chain bridge.Chain) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	prefix := string(chain) + ":"
	for k := range m.processed {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
