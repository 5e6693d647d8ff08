package threshold

import (
	"fmt"
	"time"

	"github.com/bridgerelay/coordinator/internal/curve"
)

// FirstPartialWins is the simplified fallback scheme: each validator holds
// an independent, unrelated ECDSA key (not a Shamir share of anything) and
// the coordinator accepts whichever single partial arrives first as the
// final signature, provided it verifies under that validator's own public
// key.
//
// This is NOT a threshold scheme: compromising one validator compromises
// the bridge outright. It exists for local/single-node testing only. A
// Manager runs it only when the scheme is set explicitly (THRESHOLD_SCHEME,
// see config.Load); no warning is logged when it is used.
func FirstPartialWins(partials []PartialSignature, publicKeys map[ValidatorID]*curve.Point, message []byte) (AggregatedSignature, error) {
	if len(partials) == 0 {
		return AggregatedSignature{}, ErrInsufficientSignatures
	}
	for _, p := range partials {
		pub, ok := publicKeys[p.ValidatorID]
		if !ok {
			continue
		}
		sig := AggregatedSignature{
			R:         p.R,
			S:         p.S,
			Signers:   []ValidatorID{p.ValidatorID},
			SchemeTag: SchemeSimplified,
			Timestamp: time.Now(),
		}
		if Verify(sig, message, pub) {
			return sig, nil
		}
	}
	return AggregatedSignature{}, fmt.Errorf("%w: no partial verified under its claimed validator key", ErrInvalidSignature)
}

// New validates cfg and returns it unchanged, refusing to hand back a
// Config for an unrecognized scheme. session.NewManager does not call it;
// on the relayer's startup path, config.Config.Validate is what rejects an
// unrecognized THRESHOLD_SCHEME.
func New(cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Scheme != SchemeThreshold && cfg.Scheme != SchemeSimplified {
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, cfg.Scheme)
	}
	return cfg, nil
}

// ReadinessThreshold is how many admitted partials a session needs before
// it may aggregate, given cfg.Scheme: cfg.Threshold for the true (k,n)
// scheme, or 1 for SchemeSimplified's first-partial-wins fallback.
func ReadinessThreshold(cfg Config) int {
	if cfg.Scheme == SchemeSimplified {
		return 1
	}
	return cfg.Threshold
}

// AggregateFor dispatches to Aggregate or FirstPartialWins based on
// cfg.Scheme, giving session.Manager one call site that stays correct as
// scheme selection evolves instead of branching on cfg.Scheme itself.
func AggregateFor(cfg Config, partials []PartialSignature, pubShares []PublicKeyShare, message []byte) (AggregatedSignature, error) {
	if cfg.Scheme == SchemeSimplified {
		publicKeys := make(map[ValidatorID]*curve.Point, len(pubShares))
		for _, ps := range pubShares {
			publicKeys[ps.ValidatorID] = ps.Point
		}
		return FirstPartialWins(partials, publicKeys, message)
	}
	return Aggregate(partials, pubShares, message, cfg)
}
