package threshold

import "errors"

// Sentinel errors for the threshold-crypto error taxonomy.
var (
	ErrInvalidKeyShare        = errors.New("threshold: invalid key share")
	ErrInsufficientSignatures = errors.New("threshold: insufficient partial signatures")
	ErrInvalidSignature       = errors.New("threshold: aggregated signature failed verification")
	ErrNonceMismatch          = errors.New("threshold: partial signature nonce commitment does not match session R")
	ErrDuplicateSignature     = errors.New("threshold: validator already contributed a partial signature")
	ErrUnsupportedScheme      = errors.New("threshold: unsupported or disallowed scheme")
)
