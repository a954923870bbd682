package match

import "errors"

// Sentinel kinds for match lifecycle errors.
var (
	ErrUnknownStatus = errors.New("unknown match status")
)
