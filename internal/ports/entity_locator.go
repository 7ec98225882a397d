package ports

import (
	"context"
	"property-distance-service/internal/domain"
)

// Port: resolves an entity id (property, point of interest) to its location.
type EntityLocator interface {
	// Return the coordinates of one entity. Unknown ids wrap domain.ErrEntityNotFound.
	Locate(ctx context.Context, id int64) (domain.Coordinates, error)
	// Return coordinates for the ids that exist; unknown ids are absent from the map.
	LocateMany(ctx context.Context, ids []int64) (map[int64]domain.Coordinates, error)
}
