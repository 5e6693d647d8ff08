// Package session implements the signing session manager. One
// SigningSession exists per src_tx, accumulating validator partials until k
// are admitted, at which point it aggregates exactly once.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bridgerelay/coordinator/internal/common"
	"github.com/bridgerelay/coordinator/internal/curve"
	"github.com/bridgerelay/coordinator/internal/threshold"
	"github.com/bridgerelay/coordinator/internal/transport"
)

var ErrSessionNotFound = errors.New("session: not found")

// sessionState is one in-flight SigningSession, guarded by its own mutex so
// concurrent admits for different sessions never contend.
type sessionState struct {
	mu         sync.Mutex
	message    []byte
	cfg        threshold.Config
	r          *big.Int
	k          *big.Int // this node's own nonce share; every validator in a session is dealt the same scalar, so it doubles as the verification key for admission
	partials   map[threshold.ValidatorID]threshold.PartialSignature
	pubShares  []threshold.PublicKeyShare
	createdAt  time.Time
	aggregated *threshold.AggregatedSignature
}

// Manager owns every in-flight SigningSession, keyed by src_tx.
type Manager struct {
	cfg       threshold.Config
	transport transport.SignatureTransport
	timeout   time.Duration
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

func NewManager(cfg threshold.Config, tr transport.SignatureTransport, timeout time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		transport: tr,
		timeout:   timeout,
		logger:    logger.With().Str("component", "session_manager").Logger(),
		sessions:  make(map[string]*sessionState),
	}
}

// OpenOrJoin returns the session for sessionID, creating it if absent. r
// and k come from this node's own SessionNonce (k is the dealt nonce
// scalar, identical across every validator in the session, and is what
// lets this node verify OTHER validators' partials cryptographically
// before admission). pubShares is the full validator set's public key
// shares, needed for that verification and to later combine the
// aggregate.
func (m *Manager) OpenOrJoin(sessionID string, message []byte, r, k *big.Int, pubShares []threshold.PublicKeyShare) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s := &sessionState{
		message:   message,
		cfg:       m.cfg,
		r:         r,
		k:         k,
		partials:  make(map[threshold.ValidatorID]threshold.PartialSignature),
		pubShares: pubShares,
		createdAt: time.Now(),
	}
	m.sessions[sessionID] = s
	return s
}

func (m *Manager) lookup(sessionID string) (*sessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// AddPartial admits a partial signature into sessionID. It verifies the
// partial against the claimed validator's public share before admission,
// rejects a second contribution from the same validator, and rejects a
// nonce commitment that disagrees with the session's established R.
func (m *Manager) AddPartial(sessionID string, partial threshold.PartialSignature) error {
	s, ok := m.lookup(sessionID)
	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.partials[partial.ValidatorID]; dup {
		return errors.Wrapf(threshold.ErrDuplicateSignature, "validator %s", partial.ValidatorID)
	}

	var pub *threshold.PublicKeyShare
	for i := range s.pubShares {
		if s.pubShares[i].ValidatorID == partial.ValidatorID {
			pub = &s.pubShares[i]
			break
		}
	}
	if pub == nil {
		return errors.Wrapf(threshold.ErrInvalidSignature, "no public share registered for %s", partial.ValidatorID)
	}

	if s.cfg.Scheme == threshold.SchemeSimplified {
		// Each validator holds an independent key under this scheme; there
		// is no shared session R to enforce, and admission is just a plain
		// ECDSA check against that validator's own public share.
		candidate := threshold.AggregatedSignature{R: partial.R, S: partial.S}
		if !threshold.Verify(candidate, s.message, pub.Point) {
			return errors.Wrapf(threshold.ErrInvalidSignature, "partial from %s failed verification", partial.ValidatorID)
		}
	} else {
		if partial.R.Cmp(s.r) != 0 {
			return errors.Wrapf(threshold.ErrNonceMismatch, "validator %s", partial.ValidatorID)
		}
		if !verifyPartial(partial, *pub, s.message, s.k) {
			return errors.Wrapf(threshold.ErrInvalidSignature, "partial from %s failed verification", partial.ValidatorID)
		}
	}

	s.partials[partial.ValidatorID] = partial

	if s.aggregated == nil && len(s.partials) >= threshold.ReadinessThreshold(s.cfg) {
		partials := make([]threshold.PartialSignature, 0, len(s.partials))
		for _, p := range s.partials {
			partials = append(partials, p)
		}
		agg, err := threshold.AggregateFor(s.cfg, partials, s.pubShares, s.message)
		if err != nil {
			m.logger.Error().Err(err).Str("session_id", sessionID).Msg("aggregation failed at readiness")
			return err
		}
		s.aggregated = &agg
	}
	return nil
}

// Result returns the aggregated signature once ready, or ok=false if the
// session is still accumulating partials. Safe to poll repeatedly; reads
// after the first readiness transition are pure.
func (m *Manager) Result(sessionID string) (threshold.AggregatedSignature, bool, error) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return threshold.AggregatedSignature{}, false, errors.Wrapf(ErrSessionNotFound, "session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aggregated == nil {
		return threshold.AggregatedSignature{}, false, nil
	}
	return *s.aggregated, true, nil
}

// BroadcastOwn publishes own's partial for sessionID over the transport.
func (m *Manager) BroadcastOwn(ctx context.Context, sessionID string, own threshold.PartialSignature) error {
	return m.transport.Broadcast(ctx, transport.Message{
		SessionID:   sessionID,
		ValidatorID: own.ValidatorID,
		Partial:     own,
	})
}

// ConsumeTransport drains tr's Subscribe stream, admitting every partial it
// sees. Intended to be run once as a long-lived goroutine per Manager.
func (m *Manager) ConsumeTransport(ctx context.Context) error {
	stream, err := m.transport.Subscribe(ctx)
	if err != nil {
		return errors.Wrap(err, "session: subscribe to transport")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, open := <-stream:
			if !open {
				return nil
			}
			if err := m.AddPartial(msg.SessionID, msg.Partial); err != nil {
				m.logger.Debug().Err(err).Str("session_id", msg.SessionID).Msg("rejected incoming partial")
			}
		}
	}
}

// Reap evicts sessions that have not aggregated and are older than the
// manager's signature_timeout (aggregated sessions are kept), allowing the
// same src_tx to re-open a fresh session on next observation;
// expired sessions are not retried automatically.
func (m *Manager) Reap(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []string
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := s.aggregated == nil && now.Sub(s.createdAt) > m.timeout
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// RunReaper blocks, reaping every interval until ctx is cancelled.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := m.Reap(now); len(evicted) > 0 {
				m.logger.Info().Strs("session_ids", evicted).Msg("reaped expired sessions")
			}
		}
	}
}

// verifyPartial checks s_i against pub's public share before admission,
// rejecting forgeries. It rearranges s_i = k^-1(h + r*x_i) into an
// equation of curve points that needs no secret beyond k (which this node
// holds, since every validator in a session is dealt the same nonce
// scalar): s_i*k*G must equal h*G + r*Pub_i.
func verifyPartial(partial threshold.PartialSignature, pub threshold.PublicKeyShare, message []byte, k *big.Int) bool {
	if partial.S == nil || partial.S.Sign() == 0 || partial.R == nil || partial.R.Sign() == 0 || pub.Point == nil || k == nil {
		return false
	}
	modN := common.ModInt(curve.N)
	h := threshold.HashMessage(message)

	lhs := curve.ScalarBaseMult(modN.Mul(partial.S, k))
	rhs, err := curve.ScalarBaseMult(h).Add(pub.Point.ScalarMult(partial.R))
	if err != nil {
		return false
	}
	return lhs.Equals(rhs)
}
