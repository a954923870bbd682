package provider

import "errors"

// Provider errors.
var (
	ErrUnauthorized = errors.New("provider rejected credential")
	ErrUpstream     = errors.New("provider upstream error")
	ErrNoRefresh    = errors.New("no credential refresh endpoint configured")
	ErrSimulated    = errors.New("simulated provider failure")
)
