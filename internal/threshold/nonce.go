package threshold

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/bridgerelay/coordinator/internal/common"
	"github.com/bridgerelay/coordinator/internal/curve"
)

// SessionNonce is the output of dealing a fresh one-time nonce for a single
// signing session: a public commitment r (the x-coordinate of k*G) plus the
// scalar k itself, handed identically to every participating validator.
//
// Unlike the long-term key, the nonce is NOT Shamir-split across
// validators. Splitting it would make the partial-signature combination in
// Aggregate unsound: s_i = k_i^-1(h + r*x_i) does not reconstruct linearly
// when each k_i is an independent share of k, because matrix inversion
// does not commute with Lagrange interpolation. Real threshold ECDSA
// solves this with an interactive multiplicative-to-additive (MtA) share
// conversion built on Paillier encryption; that multi-round protocol is
// deliberately out of scope here. DealSessionNonce instead hands the same k
// to every validator over the same trusted channel used to provision
// KeyShares, which keeps the combination in Aggregate algebraically sound
// at the cost of a documented trust assumption: any two validators who
// both sign in a session can, given k and each other's s_i, recover each
// other's private key share. That is acceptable for a permissioned
// validator set already trusted with the underlying KeyShares, but it is
// not a production-grade construction; replacing it with real MtA is the
// natural next step beyond this scheme.
type SessionNonce struct {
	R      *big.Int         // commitment x-coordinate, shared by every partial in the session
	K      *big.Int         // the dealt nonce scalar, identical for every validator
	Shares map[int]*big.Int // validator index -> nonce value (all equal to K)
}

// DealSessionNonce samples a fresh ephemeral scalar and its public
// commitment, then hands the identical scalar to every one of total
// validators. total, not cfg.Threshold, sizes the share map: any k of the
// n validators may end up contributing a partial.
func DealSessionNonce(cfg Config, total int) (*SessionNonce, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := common.GetRandomPositiveInt(curve.N)
	r := new(big.Int).Mod(curve.ScalarBaseMult(k).X(), curve.N)
	if r.Sign() == 0 {
		return DealSessionNonce(cfg, total)
	}

	out := &SessionNonce{R: r, K: k, Shares: make(map[int]*big.Int, total)}
	for i := 1; i <= total; i++ {
		out.Shares[i] = new(big.Int).Set(k)
	}
	return out, nil
}

// DeriveSessionNonce is the coordinator's actual entry point for opening a
// session in a multi-process deployment: instead of one validator dealing a
// fresh random nonce and pushing it out over some separate trusted channel
// (nonceSeed already *is* that channel, provisioned alongside KeyShares),
// every validator's process calls this independently, for the same
// sessionID, and arrives at the identical (R, K) without exchanging a
// single message. This is what makes the session nonce deterministic in
// session_id rather than aspirational: a validator
// that crashes and re-observes the same src_tx rederives the same nonce,
// so it can never fork a session onto a second R.
//
// k is HMAC-SHA256(nonceSeed, sessionID || counter) reduced mod N, with
// counter incremented on the vanishingly rare r=0 retry. nonceSeed is
// shared out of band with the same trust assumptions DealSessionNonce's
// doc comment already spells out for the simple-dealer case.
func DeriveSessionNonce(cfg Config, total int, nonceSeed []byte, sessionID string) (*SessionNonce, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var k *big.Int
	for counter := uint32(0); ; counter++ {
		mac := hmac.New(sha256.New, nonceSeed)
		mac.Write([]byte(sessionID))
		var ctrBytes [4]byte
		binary.BigEndian.PutUint32(ctrBytes[:], counter)
		mac.Write(ctrBytes[:])
		digest := mac.Sum(nil)

		candidate := new(big.Int).Mod(new(big.Int).SetBytes(digest), curve.N)
		if candidate.Sign() == 0 {
			continue
		}
		r := new(big.Int).Mod(curve.ScalarBaseMult(candidate).X(), curve.N)
		if r.Sign() == 0 {
			continue
		}
		k = candidate
		out := &SessionNonce{R: r, K: k, Shares: make(map[int]*big.Int, total)}
		for i := 1; i <= total; i++ {
			out.Shares[i] = new(big.Int).Set(k)
		}
		return out, nil
	}
}
