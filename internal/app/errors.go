package service

import "errors"

// Engine errors.
var (
	// ErrDataIntegrity means an expected roster or snapshot record is missing.
	// The invocation is safe to retry once the data is repaired.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrMatchEnded is returned when advancing a match that has ended.
	ErrMatchEnded = errors.New("match has ended")
	// ErrInvalidTransition is returned for a transition the flow does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnreachableTarget is returned for a job whose target lies behind the match.
	ErrUnreachableTarget = errors.New("target status unreachable")
	// ErrNotStarted is returned when jobs are submitted before Start.
	ErrNotStarted = errors.New("engine not started")
)
