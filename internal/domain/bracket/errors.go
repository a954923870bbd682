package bracket

import "errors"

// ErrUnknownEntrant is returned when a seed is not on the roster.
var ErrUnknownEntrant = errors.New("unknown entrant")
