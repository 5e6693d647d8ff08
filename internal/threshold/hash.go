package threshold

import (
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/bridgerelay/coordinator/internal/curve"
)

// Keccak256 hashes data the same way an EVM precompile does, computed
// directly against golang.org/x/crypto/sha3's legacy-Keccak variant rather
// than through go-ethereum's crypto.Keccak256 wrapper, since this module
// already requires x/crypto directly and the digest is exactly the
// Keccak-256 construction x/crypto/sha3 implements.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// HashMessage reduces a Keccak-256 digest of message into a scalar mod N,
// matching the hash-to-scalar step an EVM precompile performs before
// ecrecover, so the combined signature verifies against Chain-A's standard
// ECDSA verification path.
func HashMessage(message []byte) *big.Int {
	digest := Keccak256(message)
	return new(big.Int).Mod(new(big.Int).SetBytes(digest), curve.N)
}
