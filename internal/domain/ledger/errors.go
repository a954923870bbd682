package ledger

import "errors"

// Errors returned to the caller of a wager operation.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateAction   = errors.New("duplicate wager")
	ErrWindowClosed      = errors.New("wager window closed")
	ErrNotFinalist       = errors.New("target is not a declared finalist")
	ErrUnknownEntrant    = errors.New("unknown entrant")
	ErrUnknownArtifact   = errors.New("unknown artifact")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInvalidAmount     = errors.New("invalid amount")
)
