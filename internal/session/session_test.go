package session_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bridgerelay/coordinator/internal/curve"
	"github.com/bridgerelay/coordinator/internal/session"
	"github.com/bridgerelay/coordinator/internal/threshold"
	"github.com/bridgerelay/coordinator/internal/transport"
)

func setup(t *testing.T, k, n int) (*session.Manager, threshold.Config, map[threshold.ValidatorID]threshold.KeyShare, []threshold.PublicKeyShare, *threshold.SessionNonce) {
	t.Helper()
	cfg := threshold.Config{Threshold: k, Total: n, Scheme: threshold.SchemeThreshold}
	validators := make([]threshold.ValidatorID, n)
	for i := range validators {
		validators[i] = threshold.ValidatorID(string(rune('a' + i)))
	}
	shares, _, err := threshold.GenerateKeyShares(cfg, validators)
	require.NoError(t, err)

	var pubShares []threshold.PublicKeyShare
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
	}

	nonce, err := threshold.DealSessionNonce(cfg, n)
	require.NoError(t, err)

	m := session.NewManager(cfg, transport.NewInMemory(), time.Minute, zerolog.Nop())
	return m, cfg, shares, pubShares, nonce
}

func partialsFor(t *testing.T, shares map[threshold.ValidatorID]threshold.KeyShare, nonce *threshold.SessionNonce, message []byte, sessionID string) map[threshold.ValidatorID]threshold.PartialSignature {
	t.Helper()
	out := make(map[threshold.ValidatorID]threshold.PartialSignature, len(shares))
	for _, s := range shares {
		p, err := threshold.PartialSign(s, nonce.Shares[s.Index], nonce.R, message, sessionID)
		require.NoError(t, err)
		out[s.ValidatorID] = p
	}
	return out
}

func TestOpenOrJoinReturnsSameSessionOnSecondCall(t *testing.T) {
	m, _, _, pubShares, nonce := setup(t, 2, 3)
	message := []byte("event-1")

	first := m.OpenOrJoin("0xabc", message, nonce.R, nonce.K, pubShares)
	second := m.OpenOrJoin("0xabc", message, nonce.R, nonce.K, pubShares)
	require.Same(t, first, second)
}

func TestAddPartialAggregatesExactlyOnceAtThreshold(t *testing.T) {
	m, cfg, shares, pubShares, nonce := setup(t, 2, 4)
	message := []byte("event-2")
	sessionID := "0xdef"
	m.OpenOrJoin(sessionID, message, nonce.R, nonce.K, pubShares)

	partials := partialsFor(t, shares, nonce, message, sessionID)

	_, ready, err := m.Result(sessionID)
	require.NoError(t, err)
	require.False(t, ready)

	count := 0
	var admitted int
	for _, p := range partials {
		require.NoError(t, m.AddPartial(sessionID, p))
		admitted++
		count++
		if count == cfg.Threshold {
			break
		}
	}
	require.Equal(t, cfg.Threshold, admitted)

	sig, ready, err := m.Result(sessionID)
	require.NoError(t, err)
	require.True(t, ready)
	require.NotNil(t, sig.R)
	require.NotNil(t, sig.S)
}

func TestAddPartialRejectsUnknownSession(t *testing.T) {
	m, _, shares, _, nonce := setup(t, 2, 3)
	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	p, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, []byte("m"), "ghost")
	require.NoError(t, err)

	err = m.AddPartial("ghost", p)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAddPartialRejectsDuplicateValidator(t *testing.T) {
	m, _, shares, pubShares, nonce := setup(t, 2, 3)
	message := []byte("event-3")
	sessionID := "0x111"
	m.OpenOrJoin(sessionID, message, nonce.R, nonce.K, pubShares)

	partials := partialsFor(t, shares, nonce, message, sessionID)
	var first threshold.PartialSignature
	for _, p := range partials {
		first = p
		break
	}

	require.NoError(t, m.AddPartial(sessionID, first))
	err := m.AddPartial(sessionID, first)
	require.ErrorIs(t, err, threshold.ErrDuplicateSignature)
}

func TestAddPartialRejectsNonceMismatch(t *testing.T) {
	m, cfg, shares, pubShares, nonce := setup(t, 2, 3)
	other, err := threshold.DealSessionNonce(cfg, cfg.Total)
	require.NoError(t, err)
	message := []byte("event-4")
	sessionID := "0x222"
	m.OpenOrJoin(sessionID, message, nonce.R, nonce.K, pubShares)

	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	badPartial, err := threshold.PartialSign(any, other.Shares[any.Index], other.R, message, sessionID)
	require.NoError(t, err)

	err = m.AddPartial(sessionID, badPartial)
	require.ErrorIs(t, err, threshold.ErrNonceMismatch)
}

func TestAddPartialRejectsForgedSignature(t *testing.T) {
	m, _, shares, pubShares, nonce := setup(t, 2, 3)
	message := []byte("event-5")
	sessionID := "0x333"
	m.OpenOrJoin(sessionID, message, nonce.R, nonce.K, pubShares)

	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	forged, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, message, sessionID)
	require.NoError(t, err)
	forged.S.Add(forged.S, forged.S) // tamper with the scalar after honest computation

	err = m.AddPartial(sessionID, forged)
	require.ErrorIs(t, err, threshold.ErrInvalidSignature)
}

func TestReapEvictsOnlyExpiredUnaggregatedSessions(t *testing.T) {
	_, cfg, shares, pubShares, nonce := setup(t, 2, 3)
	timeout := 30 * time.Millisecond
	m := session.NewManager(cfg, transport.NewInMemory(), timeout, zerolog.Nop())

	expiredID := "0xexpired"
	aggregatedID := "0xaggregated"
	m.OpenOrJoin(expiredID, []byte("a"), nonce.R, nonce.K, pubShares)
	m.OpenOrJoin(aggregatedID, []byte("c"), nonce.R, nonce.K, pubShares)

	partials := partialsFor(t, shares, nonce, []byte("c"), aggregatedID)
	n := 0
	for _, p := range partials {
		require.NoError(t, m.AddPartial(aggregatedID, p))
		n++
		if n == cfg.Threshold {
			break
		}
	}
	_, ready, err := m.Result(aggregatedID)
	require.NoError(t, err)
	require.True(t, ready)

	time.Sleep(2 * timeout)
	freshID := "0xfresh"
	m.OpenOrJoin(freshID, []byte("b"), nonce.R, nonce.K, pubShares)

	evicted := m.Reap(time.Now())
	require.ElementsMatch(t, []string{expiredID}, evicted)

	_, _, err = m.Result(expiredID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	_, ready, err = m.Result(freshID)
	require.NoError(t, err)
	require.False(t, ready)
	_, ready, err = m.Result(aggregatedID)
	require.NoError(t, err)
	require.True(t, ready)
}

func TestSimplifiedSchemeAggregatesOnFirstValidPartial(t *testing.T) {
	cfg := threshold.Config{Threshold: 2, Total: 3, Scheme: threshold.SchemeSimplified}
	validators := []threshold.ValidatorID{"a", "b", "c"}
	shares, _, err := threshold.GenerateKeyShares(threshold.Config{Threshold: 1, Total: 3, Scheme: threshold.SchemeThreshold}, validators)
	require.NoError(t, err)

	var pubShares []threshold.PublicKeyShare
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
	}

	m := session.NewManager(cfg, transport.NewInMemory(), time.Minute, zerolog.Nop())
	message := []byte("event-simplified")
	sessionID := "0xsimplified"
	m.OpenOrJoin(sessionID, message, nil, nil, pubShares)

	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	// Each validator signs independently under its own share in this
	// scheme: nonceShare and r are local to the signer, not dealt by a
	// session-wide nonce.
	own := big.NewInt(77)
	r := new(big.Int).Mod(curve.ScalarBaseMult(own).X(), curve.N)
	p, err := threshold.PartialSign(any, own, r, message, sessionID)
	require.NoError(t, err)

	require.NoError(t, m.AddPartial(sessionID, p))

	sig, ready, err := m.Result(sessionID)
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, threshold.SchemeSimplified, sig.SchemeTag)
	require.Equal(t, []threshold.ValidatorID{any.ValidatorID}, sig.Signers)
}

func TestSingleValidatorThresholdReachesReadinessImmediately(t *testing.T) {
	m, cfg, shares, pubShares, nonce := setup(t, 1, 1)
	message := []byte("event-6")
	sessionID := "0xsolo"
	m.OpenOrJoin(sessionID, message, nonce.R, nonce.K, pubShares)

	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	p, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, message, sessionID)
	require.NoError(t, err)
	require.NoError(t, m.AddPartial(sessionID, p))

	_, ready, err := m.Result(sessionID)
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, 1, cfg.Threshold)
}
