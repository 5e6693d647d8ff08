package threshold

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bridgerelay/coordinator/internal/common"
	"github.com/bridgerelay/coordinator/internal/curve"
)

// PartialSign computes one validator's contribution to a threshold
// signature over message, given the session's shared nonce commitment r and
// this validator's share of the underlying ephemeral scalar. The result is
// unweighted; Aggregate applies the Lagrange coefficients.
//
// s_i = nonceShare^-1 * (H(message) + r*privateShare) mod N
//
// Given the same (share, nonceShare, r, message, sessionID), R and S are
// identical on every call (only CreatedAt differs): nothing here reads randomness, so a
// validator that crashes and retries after the nonce has already been dealt
// reproduces the same partial rather than risking a second, inconsistent
// one.
func PartialSign(share KeyShare, nonceShare, r *big.Int, message []byte, sessionID string) (PartialSignature, error) {
	if share.PrivateShare == nil || share.PrivateShare.Sign() == 0 {
		return PartialSignature{}, fmt.Errorf("%w: empty private share for validator %s", ErrInvalidKeyShare, share.ValidatorID)
	}
	if nonceShare == nil || nonceShare.Sign() == 0 {
		return PartialSignature{}, fmt.Errorf("%w: empty nonce share for validator %s", ErrInvalidKeyShare, share.ValidatorID)
	}
	if r == nil || r.Sign() == 0 {
		return PartialSignature{}, fmt.Errorf("%w: empty nonce commitment for session %s", ErrInvalidKeyShare, sessionID)
	}

	modN := common.ModInt(curve.N)
	h := HashMessage(message)

	rx := modN.Mul(r, share.PrivateShare)
	numerator := modN.Add(h, rx)
	kInv := modN.ModInverse(nonceShare)
	s := modN.Mul(kInv, numerator)

	return PartialSignature{
		ValidatorID: share.ValidatorID,
		SessionID:   sessionID,
		R:           r,
		S:           s,
		CreatedAt:   time.Now(),
	}, nil
}
