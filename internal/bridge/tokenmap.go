package bridge

import (
	"fmt"
	"sync"
)

// TokenMap is the read-mostly bijection between a Chain-A token address and
// a Chain-B asset id. Registration is expected to happen rarely
// (governance action), so a single mutex guarding two maps is simpler and
// clearer than anything lock-free.
type TokenMap struct {
	mu        sync.RWMutex
	byToken   map[[20]byte]uint32
	byAssetID map[uint32][20]byte
}

func NewTokenMap() *TokenMap {
	return &TokenMap{
		byToken:   make(map[[20]byte]uint32),
		byAssetID: make(map[uint32][20]byte),
	}
}

// Register adds a token_A <-> asset_id pair. Re-registering the same pair is
// a no-op (idempotent); registering a conflicting pair fails.
func (m *TokenMap) Register(token [20]byte, assetID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingAsset, ok := m.byToken[token]; ok {
		if existingAsset == assetID {
			return nil
		}
		return fmt.Errorf("%w: token already maps to asset %d", ErrDuplicateMapping, existingAsset)
	}
	if existingToken, ok := m.byAssetID[assetID]; ok {
		if existingToken == token {
			return nil
		}
		return fmt.Errorf("%w: asset already maps to a different token", ErrDuplicateMapping)
	}

	m.byToken[token] = assetID
	m.byAssetID[assetID] = token
	return nil
}

func (m *TokenMap) AssetIDFor(token [20]byte) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assetID, ok := m.byToken[token]
	if !ok {
		return 0, fmt.Errorf("%w: token %x", ErrUnknownToken, token)
	}
	return assetID, nil
}

func (m *TokenMap) TokenFor(assetID uint32) ([20]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.byAssetID[assetID]
	if !ok {
		return [20]byte{}, fmt.Errorf("%w: asset %d", ErrUnknownAsset, assetID)
	}
	return token, nil
}
