package threshold

import (
	"math/big"
	"time"

	"github.com/bridgerelay/coordinator/internal/curve"
)

// ValidatorID identifies one participant in the threshold scheme.
type ValidatorID string

// Scheme selects which signing strategy a Manager implements.
type Scheme string

const (
	// SchemeThreshold is the true (k,n) Shamir/Lagrange ECDSA scheme and is
	// the only scheme permitted in production.
	SchemeThreshold Scheme = "threshold"
	// SchemeSimplified is the reference source's fallback in which each
	// validator holds an independent key and the first valid partial wins.
	// It is NOT a threshold scheme; see simplified.go.
	SchemeSimplified Scheme = "simplified"
)

// Config describes a (k,n) instance: k of n validators must cooperate.
type Config struct {
	Threshold int // k
	Total     int // n
	Scheme    Scheme
}

func (c Config) Validate() error {
	if c.Total <= 0 {
		return ErrUnsupportedScheme
	}
	if c.Threshold <= 0 || c.Threshold > c.Total {
		return ErrUnsupportedScheme
	}
	return nil
}

// KeyShare is one validator's private share of the combined signing key.
// PrivateShare must be wiped on Zeroize and never logged or persisted.
type KeyShare struct {
	ValidatorID  ValidatorID
	Index        int // 1-indexed position used as the Shamir x-coordinate
	PrivateShare *big.Int
	PublicShare  *curve.Point
	Config       Config
}

// Zeroize overwrites the private share in place. Callers must stop using the
// KeyShare afterward; the method exists so callers can scrub memory before a
// KeyShare value goes out of scope.
func (k *KeyShare) Zeroize() {
	if k.PrivateShare == nil {
		return
	}
	k.PrivateShare.SetInt64(0)
	k.PrivateShare = nil
}

// PublicKeyShare is the public half of a KeyShare, safe to persist and share.
type PublicKeyShare struct {
	ValidatorID ValidatorID
	Index       int
	Point       *curve.Point
}

// PartialSignature is one validator's contribution toward an aggregated
// signature over a single session's message.
type PartialSignature struct {
	ValidatorID ValidatorID
	SessionID   string
	R           *big.Int // shared nonce commitment's x-coordinate
	S           *big.Int // this validator's unweighted partial s_i
	CreatedAt   time.Time
}

// AggregatedSignature is the final (r,s) ECDSA signature plus provenance.
type AggregatedSignature struct {
	R         *big.Int
	S         *big.Int
	Signers   []ValidatorID
	SchemeTag Scheme
	Timestamp time.Time
}

// Bytes returns the 64-byte (R||S) fixed-width encoding accepted by a
// standard ECDSA verifier on either destination chain.
func (a *AggregatedSignature) Bytes() []byte {
	byteLen := (curve.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*byteLen)
	a.R.FillBytes(out[:byteLen])
	a.S.FillBytes(out[byteLen:])
	return out
}
