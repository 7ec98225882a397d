package distance

import (
	"context"
	"math"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/ports"
)

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between a and b.
func Haversine(a, b domain.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Estimate approximates a leg from straight-line distance and the mode's
// assumed speed. Time is derived from the already rounded distance.
func Estimate(origin, destination domain.Coordinates, mode domain.TravelMode) ports.DistanceResult {
	meters := math.Round(Haversine(origin, destination))
	seconds := math.Round(meters / mode.AssumedSpeed())
	return ports.DistanceResult{
		DistanceMeters:  int(meters),
		DurationSeconds: int(seconds),
		Estimated:       true,
	}
}

// HaversineProvider never calls out and never fails for valid input.
type HaversineProvider struct{}

func NewHaversineProvider() *HaversineProvider { return &HaversineProvider{} }

func (HaversineProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
	mode domain.TravelMode,
) (ports.DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.DistanceResult{}, err
	}
	if !mode.Valid() {
		return ports.DistanceResult{}, domain.ErrInvalidMode
	}
	return Estimate(origin, destination, mode), nil
}
