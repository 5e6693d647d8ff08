package threshold_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgerelay/coordinator/internal/threshold"
)

func setup(t *testing.T, k, n int) (threshold.Config, map[threshold.ValidatorID]threshold.KeyShare, *threshold.SessionNonce) {
	t.Helper()
	cfg := threshold.Config{Threshold: k, Total: n, Scheme: threshold.SchemeThreshold}
	validators := make([]threshold.ValidatorID, n)
	for i := range validators {
		validators[i] = threshold.ValidatorID(string(rune('a' + i)))
	}
	shares, _, err := threshold.GenerateKeyShares(cfg, validators)
	require.NoError(t, err)

	nonce, err := threshold.DealSessionNonce(cfg, n)
	require.NoError(t, err)

	return cfg, shares, nonce
}

func TestKeygenAndAggregateRoundTrip(t *testing.T) {
	cfg, shares, nonce := setup(t, 3, 5)
	message := []byte("lock event src_tx=0xabc amount=100")

	var pubShares []threshold.PublicKeyShare
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
	}
	combinedPubKey, err := threshold.CombinePublicShares(pubShares)
	require.NoError(t, err)

	var partials []threshold.PartialSignature
	for _, s := range shares {
		p, err := threshold.PartialSign(s, nonce.Shares[s.Index], nonce.R, message, "session-1")
		require.NoError(t, err)
		partials = append(partials, p)
		if len(partials) == cfg.Threshold {
			break
		}
	}

	sig, err := threshold.Aggregate(partials, pubShares, message, cfg)
	require.NoError(t, err)
	require.True(t, threshold.Verify(sig, message, combinedPubKey))
}

func TestAggregateIsPermutationInvariant(t *testing.T) {
	cfg, shares, nonce := setup(t, 2, 4)
	message := []byte("burn event src_tx=0xdef amount=55")

	var pubShares []threshold.PublicKeyShare
	var partials []threshold.PartialSignature
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
		p, err := threshold.PartialSign(s, nonce.Shares[s.Index], nonce.R, message, "session-2")
		require.NoError(t, err)
		partials = append(partials, p)
	}

	sigA, err := threshold.Aggregate(partials[:2], pubShares, message, cfg)
	require.NoError(t, err)

	reordered := []threshold.PartialSignature{partials[1], partials[0]}
	sigB, err := threshold.Aggregate(reordered, pubShares, message, cfg)
	require.NoError(t, err)

	require.Equal(t, 0, sigA.R.Cmp(sigB.R))
	require.Equal(t, 0, sigA.S.Cmp(sigB.S))
}

func TestAggregateRejectsBelowThreshold(t *testing.T) {
	cfg, shares, nonce := setup(t, 3, 4)
	message := []byte("event")

	var pubShares []threshold.PublicKeyShare
	var partials []threshold.PartialSignature
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
		p, err := threshold.PartialSign(s, nonce.Shares[s.Index], nonce.R, message, "session-3")
		require.NoError(t, err)
		partials = append(partials, p)
	}

	_, err := threshold.Aggregate(partials[:2], pubShares, message, cfg)
	require.ErrorIs(t, err, threshold.ErrInsufficientSignatures)
}

func TestAggregateRejectsNonceMismatch(t *testing.T) {
	cfg, shares, nonce := setup(t, 2, 3)
	other, err := threshold.DealSessionNonce(cfg, cfg.Total)
	require.NoError(t, err)
	message := []byte("event")

	var pubShares []threshold.PublicKeyShare
	var partials []threshold.PartialSignature
	i := 0
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
		n := nonce
		if i == 1 {
			n = other
		}
		p, perr := threshold.PartialSign(s, n.Shares[s.Index], n.R, message, "session-4")
		require.NoError(t, perr)
		partials = append(partials, p)
		i++
	}

	_, err = threshold.Aggregate(partials, pubShares, message, cfg)
	require.ErrorIs(t, err, threshold.ErrNonceMismatch)
}

func TestPartialSignIsDeterministic(t *testing.T) {
	_, shares, nonce := setup(t, 2, 3)
	message := []byte("event")
	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}

	p1, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, message, "session-5")
	require.NoError(t, err)
	p2, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, message, "session-5")
	require.NoError(t, err)
	require.Equal(t, 0, p1.S.Cmp(p2.S))
}

func TestPartialSignRejectsEmptyShare(t *testing.T) {
	_, _, nonce := setup(t, 2, 3)
	bad := threshold.KeyShare{ValidatorID: "z", Index: 9}
	_, err := threshold.PartialSign(bad, nonce.Shares[1], nonce.R, []byte("m"), "session-6")
	require.ErrorIs(t, err, threshold.ErrInvalidKeyShare)
}

func TestConfigValidateRejectsThresholdAboveTotal(t *testing.T) {
	cfg := threshold.Config{Threshold: 5, Total: 3}
	require.Error(t, cfg.Validate())
}

func TestNewRejectsUnrecognizedScheme(t *testing.T) {
	_, err := threshold.New(threshold.Config{Threshold: 1, Total: 1, Scheme: "bogus"})
	require.ErrorIs(t, err, threshold.ErrUnsupportedScheme)
}

func TestNewAcceptsSimplifiedExplicitly(t *testing.T) {
	cfg, err := threshold.New(threshold.Config{Threshold: 1, Total: 3, Scheme: threshold.SchemeSimplified})
	require.NoError(t, err)
	require.Equal(t, threshold.SchemeSimplified, cfg.Scheme)
	require.Equal(t, 1, threshold.ReadinessThreshold(cfg))
}

func TestReadinessThresholdIsKForTrueScheme(t *testing.T) {
	cfg := threshold.Config{Threshold: 3, Total: 5, Scheme: threshold.SchemeThreshold}
	require.Equal(t, 3, threshold.ReadinessThreshold(cfg))
}

func TestAggregateForDispatchesToFirstPartialWins(t *testing.T) {
	cfg := threshold.Config{Threshold: 2, Total: 3, Scheme: threshold.SchemeSimplified}
	_, shares, nonce := setup(t, 1, 3)
	message := []byte("event-simplified-dispatch")

	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	var pubShares []threshold.PublicKeyShare
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
	}
	p, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, message, "session-simplified")
	require.NoError(t, err)

	sig, err := threshold.AggregateFor(cfg, []threshold.PartialSignature{p}, pubShares, message)
	require.NoError(t, err)
	require.Equal(t, threshold.SchemeSimplified, sig.SchemeTag)
	require.Equal(t, []threshold.ValidatorID{any.ValidatorID}, sig.Signers)
}

func TestFirstPartialWinsRejectsWhenNoneVerify(t *testing.T) {
	_, shares, nonce := setup(t, 1, 2)
	message := []byte("m")
	var any threshold.KeyShare
	for _, s := range shares {
		any = s
		break
	}
	p, err := threshold.PartialSign(any, nonce.Shares[any.Index], nonce.R, message, "s")
	require.NoError(t, err)
	p.S.Add(p.S, p.S) // tamper

	var pubShares []threshold.PublicKeyShare
	for _, s := range shares {
		pubShares = append(pubShares, threshold.PublicKeyShare{ValidatorID: s.ValidatorID, Index: s.Index, Point: s.PublicShare})
	}
	_, err = threshold.AggregateFor(threshold.Config{Threshold: 1, Total: 2, Scheme: threshold.SchemeSimplified}, []threshold.PartialSignature{p}, pubShares, message)
	require.ErrorIs(t, err, threshold.ErrInvalidSignature)
}
