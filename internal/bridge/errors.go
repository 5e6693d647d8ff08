package bridge

import "errors"

var (
	ErrMalformedEvent   = errors.New("bridge: malformed event")
	ErrUnknownToken     = errors.New("bridge: token not present in token map")
	ErrUnknownAsset     = errors.New("bridge: asset id not present in token map")
	ErrDuplicateMapping = errors.New("bridge: token map entry already registered")
)
