// Package vss implements Feldman verifiable Shamir secret sharing over
// secp256k1, adapted from bnb-chain/tss-lib's crypto/vss package to the
// bridge's (k,n)-threshold ECDSA key generation.
package vss

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/bridgerelay/coordinator/internal/common"
	"github.com/bridgerelay/coordinator/internal/curve"
)

var ErrNumSharesBelowThreshold = fmt.Errorf("vss: not enough shares to satisfy the threshold")

type (
	// Share is one party's evaluation of the secret-sharing polynomial.
	Share struct {
		Threshold int
		ID        *big.Int // x-coordinate, 1-indexed
		Value     *big.Int // f(ID)
	}

	// Commitments are the polynomial coefficients lifted to the curve
	// (v0=secret*G .. vt), used to verify a share without the secret.
	Commitments []*curve.Point

	Shares []*Share
)

// CheckIndexes verifies party indices are nonzero and pairwise distinct mod N.
func CheckIndexes(indexes []*big.Int) error {
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		m := new(big.Int).Mod(idx, curve.N)
		if m.Sign() == 0 {
			return errors.New("vss: party index must not be 0")
		}
		key := m.String()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("vss: duplicate index %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Create samples a degree-(threshold-1) polynomial with constant term
// secret and returns the lifted coefficients plus one share per index.
func Create(threshold int, secret *big.Int, indexes []*big.Int) (Commitments, Shares, error) {
	if secret == nil || indexes == nil {
		return nil, nil, errors.New("vss: secret or indexes is nil")
	}
	if threshold < 1 {
		return nil, nil, errors.New("vss: threshold < 1")
	}
	if err := CheckIndexes(indexes); err != nil {
		return nil, nil, err
	}
	if len(indexes) < threshold {
		return nil, nil, ErrNumSharesBelowThreshold
	}

	poly := samplePolynomial(threshold, secret)
	commitments := make(Commitments, len(poly))
	for i, coeff := range poly {
		commitments[i] = curve.ScalarBaseMult(coeff)
	}

	shares := make(Shares, len(indexes))
	for i, id := range indexes {
		shares[i] = &Share{
			Threshold: threshold,
			ID:        id,
			Value:     evaluatePolynomial(threshold, poly, id),
		}
	}
	return commitments, shares, nil
}

// Verify checks share against the public polynomial commitments.
func (s *Share) Verify(threshold int, commitments Commitments) bool {
	if s.Threshold != threshold || len(commitments) == 0 {
		return false
	}
	modN := common.ModInt(curve.N)
	acc := commitments[0]
	power := big.NewInt(1)
	for j := 1; j < threshold; j++ {
		power = modN.Mul(power, s.ID)
		term := commitments[j].ScalarMult(power)
		var err error
		acc, err = acc.Add(term)
		if err != nil {
			return false
		}
	}
	expected := curve.ScalarBaseMult(s.Value)
	return expected.Equals(acc)
}

// Reconstruct recovers the shared secret from >= threshold shares via
// Lagrange interpolation at x=0.
func (shares Shares) Reconstruct() (*big.Int, error) {
	if len(shares) == 0 || shares[0].Threshold > len(shares) {
		return nil, ErrNumSharesBelowThreshold
	}
	modN := common.ModInt(curve.N)
	xs := make([]*big.Int, len(shares))
	for i, s := range shares {
		xs[i] = s.ID
	}

	secret := big.NewInt(0)
	for i, s := range shares {
		coeff, err := LagrangeCoefficientAt(xs, i, big.NewInt(0))
		if err != nil {
			return nil, err
		}
		secret = modN.Add(secret, modN.Mul(s.Value, coeff))
	}
	return secret, nil
}

// LagrangeCoefficientAt computes the i-th Lagrange basis polynomial, built
// from the set of x-coordinates xs, evaluated at evalPoint.
func LagrangeCoefficientAt(xs []*big.Int, i int, evalPoint *big.Int) (*big.Int, error) {
	modN := common.ModInt(curve.N)
	num := big.NewInt(1)
	den := big.NewInt(1)
	for j, xj := range xs {
		if j == i {
			continue
		}
		num = modN.Mul(num, modN.Sub(evalPoint, xj))
		den = modN.Mul(den, modN.Sub(xs[i], xj))
	}
	if den.Sign() == 0 {
		return nil, errors.New("vss: degenerate Lagrange denominator (duplicate x-coordinates)")
	}
	return modN.Mul(num, modN.ModInverse(den)), nil
}

func samplePolynomial(threshold int, secret *big.Int) []*big.Int {
	coeffs := make([]*big.Int, threshold)
	coeffs[0] = secret
	for i := 1; i < threshold; i++ {
		coeffs[i] = common.GetRandomPositiveInt(curve.N)
	}
	return coeffs
}

func evaluatePolynomial(threshold int, coeffs []*big.Int, id *big.Int) *big.Int {
	modN := common.ModInt(curve.N)
	result := new(big.Int).Set(coeffs[0])
	x := big.NewInt(1)
	for i := 1; i < threshold; i++ {
		x = modN.Mul(x, id)
		result = modN.Add(result, modN.Mul(coeffs[i], x))
	}
	return result
}
