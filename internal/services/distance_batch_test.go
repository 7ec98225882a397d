package services

import (
	"context"
	"errors"
	"property-distance-service/internal/adapters/cache"
	"property-distance-service/internal/adapters/distance"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/ports"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func entityBIDs(ds []domain.Distance) []int64 {
	out := make([]int64, len(ds))
	for i, d := range ds {
		out[i] = d.EntityBID
	}
	return out
}

func TestGetDistancesToManySkipsFailures(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetDistancesToMany(context.Background(), 1, []int64{10, 404, 12}, domain.Walking)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, entityBIDs(got))
	assert.Equal(t, 1100, got[0].DistanceMeters)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchDropped))
}

func TestGetDistancesToManyDedupesAndKeepsOrder(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetDistancesToMany(context.Background(), 1, []int64{12, 10, 12, 11, 10}, domain.Driving)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 10, 11}, entityBIDs(got))
	for _, d := range got {
		assert.Equal(t, int64(1), d.EntityAID)
		assert.Equal(t, domain.Driving, d.Mode)
	}
	assert.Equal(t, 3, f.store.Len())
}

func TestGetDistancesToManyServesHitsFromPrefetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetDistancesToMany(ctx, 1, []int64{10, 11}, domain.Walking)
	require.NoError(t, err)
	calls := f.provider.Calls()

	got, err := f.svc.GetDistancesToMany(ctx, 1, []int64{10, 11}, domain.Walking)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Cached)
	assert.True(t, got[1].Cached)
	assert.Equal(t, calls, f.provider.Calls())
}

func TestGetDistancesToManyUnknownOrigin(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetDistancesToMany(context.Background(), 404, []int64{10, 11}, domain.Walking)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.provider.Calls())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.BatchDropped))
}

func TestGetDistancesToManyEmptyAndInvalidMode(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetDistancesToMany(context.Background(), 1, nil, domain.Walking)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = f.svc.GetDistancesToMany(context.Background(), 1, []int64{10}, domain.TravelMode("hover"))
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestGetDistancesToManyFallsBackWhenPrefetchFails(t *testing.T) {
	properties, pois := locators()
	svc := NewDistanceService(properties, pois, distance.NewHaversineProvider(), brokenStore{}, Options{})

	// the prefetch and every upsert fail, so every entry is dropped
	got, err := svc.GetDistancesToMany(context.Background(), 1, []int64{10, 11}, domain.Walking)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetDistancesToManyCancellation(t *testing.T) {
	f := newFixture(t)
	f.provider.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.svc.GetDistancesToMany(ctx, 1, []int64{10, 11, 12}, domain.Walking)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// countingLocator counts round trips and can fail LocateMany.
type countingLocator struct {
	ports.EntityLocator
	manyErr error

	locates, locateManys atomic.Int64
}

func (l *countingLocator) Locate(ctx context.Context, id int64) (domain.Coordinates, error) {
	l.locates.Inc()
	return l.EntityLocator.Locate(ctx, id)
}

func (l *countingLocator) LocateMany(ctx context.Context, ids []int64) (map[int64]domain.Coordinates, error) {
	l.locateManys.Inc()
	if l.manyErr != nil {
		return nil, l.manyErr
	}
	return l.EntityLocator.LocateMany(ctx, ids)
}

func countingService(t *testing.T, manyErr error) (*DistanceService, *countingLocator, *countingLocator) {
	t.Helper()
	properties, pois := locators()
	origins := &countingLocator{EntityLocator: properties}
	destinations := &countingLocator{EntityLocator: pois, manyErr: manyErr}
	svc := NewDistanceService(origins, destinations, distance.NewHaversineProvider(), cache.NewMemoryDistanceStore(), Options{})
	return svc, origins, destinations
}

func TestGetDistancesToManyLocatesMissesInOneRoundTrip(t *testing.T) {
	svc, origins, destinations := countingService(t, nil)

	got, err := svc.GetDistancesToMany(context.Background(), 1, []int64{10, 11, 404, 12}, domain.Walking)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, entityBIDs(got))

	assert.Equal(t, int64(1), origins.locates.Load())
	assert.Equal(t, int64(1), destinations.locateManys.Load())
	assert.Zero(t, destinations.locates.Load())
}

func TestGetDistancesToManyLocatesPerEntryWhenBulkLookupFails(t *testing.T) {
	svc, _, destinations := countingService(t, errors.New("replica lagging"))

	got, err := svc.GetDistancesToMany(context.Background(), 1, []int64{10, 404, 11}, domain.Walking)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, entityBIDs(got))
	assert.Equal(t, int64(3), destinations.locates.Load())
}

func TestGetDistancesToManySkipsLocatorWhenAllHit(t *testing.T) {
	svc, origins, destinations := countingService(t, nil)
	ctx := context.Background()

	_, err := svc.GetDistancesToMany(ctx, 1, []int64{10, 11}, domain.Walking)
	require.NoError(t, err)
	origins.locates.Store(0)
	destinations.locateManys.Store(0)

	got, err := svc.GetDistancesToMany(ctx, 1, []int64{11, 10}, domain.Walking)
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 10}, entityBIDs(got))
	assert.Zero(t, origins.locates.Load())
	assert.Zero(t, destinations.locateManys.Load())
}
