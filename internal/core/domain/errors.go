package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDomain indicates a domain name outside character/episode/location
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrServiceUnavailable indicates the remote API could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrUpstream indicates the remote API answered with a non-success status
	ErrUpstream = errors.New("upstream error")
)
