package core

import "errors"

// Validation errors are returned synchronously to the caller.
var (
	ErrDuplicateName      = errors.New("duplicate waypoint name")
	ErrNotFound           = errors.New("waypoint not found")
	ErrInsufficientPoints = errors.New("insufficient points for geometry")
	ErrInvalidKind        = errors.New("invalid waypoint kind")
	ErrInvalidName        = errors.New("invalid waypoint name")
)

// Infrastructure errors.
var (
	ErrPersistence       = errors.New("persistence failure")
	ErrNetwork           = errors.New("network failure")
	ErrMalformedResponse = errors.New("malformed response")
)
