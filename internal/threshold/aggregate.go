package threshold

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/bridgerelay/coordinator/internal/common"
	"github.com/bridgerelay/coordinator/internal/curve"
	"github.com/bridgerelay/coordinator/internal/vss"
)

// Aggregate combines k or more partial signatures over the same session into
// a single standard ECDSA signature, verifying the result against the
// signer set's combined public key before returning it. Every admitted
// partial must already carry the session's shared nonce commitment; a
// mismatch here indicates the session manager failed to enforce invariant
// #3 (agreement on R) at admission time and is treated as a bug, not a
// retryable condition.
func Aggregate(partials []PartialSignature, pubShares []PublicKeyShare, message []byte, cfg Config) (AggregatedSignature, error) {
	if len(partials) < cfg.Threshold {
		return AggregatedSignature{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSignatures, len(partials), cfg.Threshold)
	}

	r := partials[0].R
	for _, p := range partials[1:] {
		if p.R.Cmp(r) != 0 {
			return AggregatedSignature{}, fmt.Errorf("%w: validator %s", ErrNonceMismatch, p.ValidatorID)
		}
	}

	indexByValidator := make(map[ValidatorID]int, len(pubShares))
	pointByValidator := make(map[ValidatorID]*curve.Point, len(pubShares))
	for _, ps := range pubShares {
		indexByValidator[ps.ValidatorID] = ps.Index
		pointByValidator[ps.ValidatorID] = ps.Point
	}

	used := partials[:cfg.Threshold]
	sorted := make([]PartialSignature, len(used))
	copy(sorted, used)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ValidatorID < sorted[j].ValidatorID })

	xs := make([]*big.Int, len(sorted))
	signerShares := make([]PublicKeyShare, len(sorted))
	signers := make([]ValidatorID, len(sorted))
	for i, p := range sorted {
		idx, ok := indexByValidator[p.ValidatorID]
		if !ok {
			return AggregatedSignature{}, fmt.Errorf("%w: no public share for validator %s", ErrInvalidSignature, p.ValidatorID)
		}
		xs[i] = big.NewInt(int64(idx))
		signerShares[i] = PublicKeyShare{ValidatorID: p.ValidatorID, Index: idx, Point: pointByValidator[p.ValidatorID]}
		signers[i] = p.ValidatorID
	}

	modN := common.ModInt(curve.N)
	s := big.NewInt(0)
	for i, p := range sorted {
		coeff, err := vss.LagrangeCoefficientAt(xs, i, big.NewInt(0))
		if err != nil {
			return AggregatedSignature{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		s = modN.Add(s, modN.Mul(p.S, coeff))
	}
	// Canonical low-S form, matching EVM precompile expectations.
	halfN := new(big.Int).Rsh(curve.N, 1)
	if s.Cmp(halfN) > 0 {
		s = modN.Sub(big.NewInt(0), s)
	}

	combinedPubKey, err := CombinePublicShares(signerShares)
	if err != nil {
		return AggregatedSignature{}, err
	}

	sig := AggregatedSignature{
		R:         new(big.Int).Set(r),
		S:         s,
		Signers:   signers,
		SchemeTag: SchemeThreshold,
		Timestamp: time.Now(),
	}
	if !Verify(sig, message, combinedPubKey) {
		return AggregatedSignature{}, ErrInvalidSignature
	}
	return sig, nil
}

// Verify checks an aggregated signature against a standard secp256k1 public
// key using the same Keccak-256 digest PartialSign hashes against.
func Verify(sig AggregatedSignature, message []byte, publicKey *curve.Point) bool {
	if sig.R == nil || sig.S == nil || sig.R.Sign() == 0 || sig.S.Sign() == 0 || publicKey == nil {
		return false
	}
	pub := publicKey.ToECDSAPublicKey()
	h := Keccak256(message)
	return ecdsa.Verify(pub, h, sig.R, sig.S)
}
