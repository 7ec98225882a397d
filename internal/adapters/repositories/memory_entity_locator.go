package repositories

import (
	"context"
	"fmt"
	"property-distance-service/internal/domain"
)

// MemoryEntityLocator serves coordinates from a fixed map. It backs the
// in-memory dev mode and tests.
type MemoryEntityLocator struct {
	coords map[int64]domain.Coordinates
}

func NewMemoryEntityLocator(coords map[int64]domain.Coordinates) *MemoryEntityLocator {
	m := make(map[int64]domain.Coordinates, len(coords))
	for id, c := range coords {
		m[id] = c
	}
	return &MemoryEntityLocator{coords: m}
}

// MemoryLocatorsFromSeed builds the property and point-of-interest locators
// from a seed document.
func MemoryLocatorsFromSeed(data EntitySeed) (properties, pois *MemoryEntityLocator, err error) {
	if err := data.Validate(); err != nil {
		return nil, nil, err
	}

	props := make(map[int64]domain.Coordinates, len(data.Properties))
	for _, p := range data.Properties {
		props[p.ID] = domain.Coordinates{Lat: p.Latitude, Lon: p.Longitude}
	}
	places := make(map[int64]domain.Coordinates, len(data.PointsOfInterest))
	for _, p := range data.PointsOfInterest {
		places[p.ID] = domain.Coordinates{Lat: p.Latitude, Lon: p.Longitude}
	}

	return &MemoryEntityLocator{coords: props}, &MemoryEntityLocator{coords: places}, nil
}

func (l *MemoryEntityLocator) Locate(ctx context.Context, id int64) (domain.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinates{}, err
	}
	c, ok := l.coords[id]
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("%w: id %d", domain.ErrEntityNotFound, id)
	}
	return c, nil
}

func (l *MemoryEntityLocator) LocateMany(ctx context.Context, ids []int64) (map[int64]domain.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[int64]domain.Coordinates, len(ids))
	for _, id := range ids {
		if c, ok := l.coords[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}
