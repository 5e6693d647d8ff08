package threshold

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/bridgerelay/coordinator/internal/common"
	"github.com/bridgerelay/coordinator/internal/curve"
	"github.com/bridgerelay/coordinator/internal/vss"
)

// GenerateKeyShares samples a fresh (k,n) Shamir sharing of a random secp256k1
// scalar and returns one KeyShare per validator. Indices are assigned by
// lexicographically sorting validator IDs, giving a deterministic tie-break
// for signer-set selection.
//
// Fails if len(validators) != config.Total. This is a local, pre-provisioned
// substitute for DKG — all validators must run this (or an equivalent
// offline ceremony) and receive their own share out of band before
// production use.
func GenerateKeyShares(cfg Config, validators []ValidatorID) (map[ValidatorID]KeyShare, *curve.Point, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if len(validators) != cfg.Total {
		return nil, nil, fmt.Errorf("%w: got %d validators, want %d", ErrInvalidKeyShare, len(validators), cfg.Total)
	}

	sorted := make([]ValidatorID, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	secret := common.GetRandomPositiveInt(curve.N)
	indexes := make([]*big.Int, cfg.Total)
	for i := range sorted {
		indexes[i] = big.NewInt(int64(i + 1))
	}

	_, shares, err := vss.Create(cfg.Threshold, secret, indexes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKeyShare, err)
	}

	result := make(map[ValidatorID]KeyShare, cfg.Total)
	for i, id := range sorted {
		result[id] = KeyShare{
			ValidatorID:  id,
			Index:        i + 1,
			PrivateShare: shares[i].Value,
			PublicShare:  curve.ScalarBaseMult(shares[i].Value),
			Config:       cfg,
		}
	}
	combinedPubKey := curve.ScalarBaseMult(secret)
	secret.SetInt64(0) // scrub the ephemeral secret now that shares are derived
	return result, combinedPubKey, nil
}

// CombinePublicShares recovers the combined public key from any k public
// shares via Lagrange interpolation at x=0, without ever reconstructing the
// private key.
func CombinePublicShares(shares []PublicKeyShare) (*curve.Point, error) {
	if len(shares) == 0 {
		return nil, ErrInsufficientSignatures
	}
	xs := make([]*big.Int, len(shares))
	for i, s := range shares {
		xs[i] = big.NewInt(int64(s.Index))
	}
	var acc *curve.Point
	for i, s := range shares {
		coeff, err := vss.LagrangeCoefficientAt(xs, i, big.NewInt(0))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		term := s.Point.ScalarMult(coeff)
		if acc == nil {
			acc = term
			continue
		}
		acc, err = acc.Add(term)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}
	return acc, nil
}
