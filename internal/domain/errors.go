package domain

import "errors"

// Error kinds surfaced by the distance cache. Adapters wrap these with
// context; callers classify with errors.Is.
var (
	// An entity id did not resolve to a coordinate.
	ErrEntityNotFound = errors.New("entity not found")

	// The routing provider failed (network, rate limit, open breaker).
	// Safe to retry at the caller's discretion.
	ErrProviderUnavailable = errors.New("distance provider unavailable")

	// The requested travel mode is not walking or driving.
	ErrInvalidMode = errors.New("invalid travel mode")

	// The persistent store failed.
	ErrStorage = errors.New("distance storage error")

	ErrInvalidCoordinates = errors.New("invalid coordinates")
)
