package decision

import "errors"

// Provider failure kinds. The collector absorbs both into the fallback.
var (
	ErrProviderTimeout = errors.New("decision provider timeout")
	ErrInvalidResponse = errors.New("invalid decision provider response")
)
