// Package curve wraps secp256k1 group operations behind an immutable point
// type, in the spirit of bnb-chain/tss-lib's crypto.ECPoint but narrowed to
// the single curve this bridge's threshold scheme runs over.
package curve

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Curve is the secp256k1 curve all threshold operations run over; chosen so
// that the combined public key verifies under a standard ECDSA precompile
// on Chain-A.
var Curve = btcec.S256()

// N is the order of the base point, i.e. the scalar field modulus.
var N = Curve.Params().N

// Point represents a point on secp256k1 in affine coordinates. Designed to
// be immutable once constructed.
type Point struct {
	x, y *big.Int
}

// NewPoint validates the coordinates are on the curve before constructing.
func NewPoint(x, y *big.Int) (*Point, error) {
	if x == nil || y == nil || !Curve.IsOnCurve(x, y) {
		return nil, errors.New("curve: point is not on secp256k1")
	}
	return &Point{x: new(big.Int).Set(x), y: new(big.Int).Set(y)}, nil
}

func (p *Point) X() *big.Int { return new(big.Int).Set(p.x) }
func (p *Point) Y() *big.Int { return new(big.Int).Set(p.y) }

// ScalarBaseMult returns k*G.
func ScalarBaseMult(k *big.Int) *Point {
	x, y := Curve.ScalarBaseMult(new(big.Int).Mod(k, N).Bytes())
	return &Point{x: x, y: y}
}

// ScalarMult returns k*P.
func (p *Point) ScalarMult(k *big.Int) *Point {
	x, y := Curve.ScalarMult(p.x, p.y, new(big.Int).Mod(k, N).Bytes())
	return &Point{x: x, y: y}
}

// Add returns p+q.
func (p *Point) Add(q *Point) (*Point, error) {
	x, y := Curve.Add(p.x, p.y, q.x, q.y)
	return NewPoint(x, y)
}

func (p *Point) Equals(q *Point) bool {
	if p == nil || q == nil {
		return false
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

// Bytes is the uncompressed 64-byte (X||Y), fixed-width, big-endian encoding.
func (p *Point) Bytes() []byte {
	byteLen := (Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*byteLen)
	p.x.FillBytes(out[:byteLen])
	p.y.FillBytes(out[byteLen:])
	return out
}

// FromBytes decodes an X||Y fixed-width encoding produced by Bytes.
func FromBytes(b []byte) (*Point, error) {
	byteLen := (Curve.Params().BitSize + 7) / 8
	if len(b) != 2*byteLen {
		return nil, errors.New("curve: invalid point encoding length")
	}
	x := new(big.Int).SetBytes(b[:byteLen])
	y := new(big.Int).SetBytes(b[byteLen:])
	return NewPoint(x, y)
}

// ToECDSAPublicKey exposes the point as a standard library public key, for
// interop with verifiers that expect crypto/ecdsa.
func (p *Point) ToECDSAPublicKey() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: Curve, X: p.X(), Y: p.Y()}
}
