package services

import (
	"context"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/obs"

	"golang.org/x/sync/errgroup"
)

// GetDistancesToMany resolves a against every id in bs. Each entry follows the
// single-pair contract independently; entries that fail are logged and left
// out. Results keep the order of first occurrence in bs. Only an invalid mode
// or a cancelled ctx fails the whole call.
func (s *DistanceService) GetDistancesToMany(
	ctx context.Context,
	a int64,
	bs []int64,
	mode domain.TravelMode,
) (_ []domain.Distance, err error) {
	defer obs.Time(ctx, "distance.GetDistancesToMany")(&err)

	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	ids := domain.UniqueIDs(bs)
	if len(ids) == 0 {
		return []domain.Distance{}, nil
	}

	logger := s.loggerFor(ctx)
	drop := func(b int64, err error) {
		s.metrics.BatchDropped.Inc()
		logger.Warn().Err(err).
			Int64("entity_a_id", a).
			Int64("entity_b_id", b).
			Str("mode", mode.String()).
			Msg("batch entry dropped")
	}

	existing, err := s.store.FindMany(ctx, a, ids)
	prefetched := err == nil
	if !prefetched {
		// per-entry lookups below still get their own chance at the store
		logger.Warn().Err(err).Int64("entity_a_id", a).Msg("batch prefetch failed")
	}

	results := make([]*domain.Distance, len(ids))
	misses := make([]int64, 0, len(ids))
	for i, b := range ids {
		if rec, ok := existing[b]; ok {
			if leg, ok := rec.Leg(mode); ok {
				s.metrics.Lookups.WithLabelValues(mode.String(), "hit").Inc()
				d := toDistance(domain.PairKey{EntityAID: a, EntityBID: b}, mode, leg, true)
				results[i] = &d
				continue
			}
		}
		misses = append(misses, b)
	}

	located, err := s.locateBatch(ctx, a, misses)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		for _, b := range misses {
			drop(b, err)
		}
		misses = nil
	}

	g := new(errgroup.Group)
	g.SetLimit(s.batchConcurrency)

	for i, b := range ids {
		if len(misses) == 0 {
			break
		}
		if results[i] != nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		key := domain.PairKey{EntityAID: a, EntityBID: b}
		var ends *endpoints
		if located != nil {
			e, ok := located.forDestination(b)
			if !ok {
				drop(b, fmt.Errorf("locate destination %d: %w", b, domain.ErrEntityNotFound))
				continue
			}
			ends = &e
		}

		g.Go(func() error {
			var (
				d   domain.Distance
				err error
			)
			if prefetched {
				var prior *domain.DistanceRecord
				if rec, ok := existing[b]; ok {
					prior = &rec
				}
				d, err = s.resolve(ctx, key, mode, prior, ends)
			} else {
				d, err = s.lookup(ctx, key, mode, ends)
			}
			if err != nil {
				drop(b, err)
				return nil
			}
			results[i] = &d
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Distance, 0, len(ids))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// batchLocations holds the origin and the destinations found in one round
// trip per locator.
type batchLocations struct {
	origin       domain.Coordinates
	destinations map[int64]domain.Coordinates
}

func (l *batchLocations) forDestination(b int64) (endpoints, bool) {
	c, ok := l.destinations[b]
	if !ok {
		return endpoints{}, false
	}
	return endpoints{origin: l.origin, destination: c}, true
}

// locateBatch resolves a and every id in bs up front. An unknown origin or a
// cancelled ctx is returned as an error. Any other locator failure yields nil
// locations, leaving each entry to locate its own ends.
func (s *DistanceService) locateBatch(ctx context.Context, a int64, bs []int64) (*batchLocations, error) {
	if len(bs) == 0 {
		return nil, nil
	}

	origin, err := s.origins.Locate(ctx, a)
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) || ctx.Err() != nil {
			return nil, fmt.Errorf("locate origin %d: %w", a, err)
		}
		s.loggerFor(ctx).Warn().Err(err).Int64("entity_a_id", a).Msg("batch origin lookup failed")
		return nil, nil
	}

	destinations, err := s.destinations.LocateMany(ctx, bs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.loggerFor(ctx).Warn().Err(err).Int("destinations", len(bs)).Msg("batch destination lookup failed")
		return nil, nil
	}

	return &batchLocations{origin: origin, destinations: destinations}, nil
}
