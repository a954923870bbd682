package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicate          = errors.New("duplicate record")
	ErrTransitionConflict = errors.New("match status transition conflict")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrWindowClosed       = errors.New("match not in wager window")
)
