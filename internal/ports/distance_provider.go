package ports

import (
	"context"
	"property-distance-service/internal/domain"
)

// Distance and travel duration between two locations for one travel mode.
// Estimated marks straight-line approximations.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
	Estimated       bool
}

// Contract for retrieving travel distance and duration between coordinates.
// Implementations may be slow, rate limited or fail; failures should wrap
// domain.ErrProviderUnavailable.
type DistanceProvider interface {
	// Return travel distance and estimated duration for the given mode.
	GetDistance(
		ctx context.Context,
		origin domain.Coordinates,
		destination domain.Coordinates,
		mode domain.TravelMode,
	) (DistanceResult, error)
}
