package services

import (
	"context"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/obs"
	"property-distance-service/internal/ports"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ComputePolicy decides which modes are computed on a cache miss.
type ComputePolicy string

const (
	// ComputeAll fills every mode the record is still missing.
	ComputeAll ComputePolicy = "all"
	// ComputeRequested fills only the mode that was asked for.
	ComputeRequested ComputePolicy = "requested"
)

func ParseComputePolicy(s string) (ComputePolicy, error) {
	switch ComputePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ComputeAll:
		return ComputeAll, nil
	case ComputeRequested:
		return ComputeRequested, nil
	default:
		return "", fmt.Errorf("unknown compute policy %q", s)
	}
}

const defaultBatchConcurrency = 5

type Options struct {
	Policy           ComputePolicy
	BatchConcurrency int
	Clock            clockwork.Clock
	Logger           zerolog.Logger
	Metrics          *obs.Metrics
	// Optional; receives the stored record after every computation.
	Publisher ports.DistancePublisher
}

// DistanceService answers pairwise distance queries from the store and
// computes, persists and returns whatever is missing.
//
// A is resolved through origins (properties) and B through destinations
// (points of interest). The service holds no global lock: concurrent misses
// for the same pair are collapsed in-process, and the store's upsert keeps a
// single row per pair across processes.
type DistanceService struct {
	origins      ports.EntityLocator
	destinations ports.EntityLocator
	provider     ports.DistanceProvider
	store        ports.DistanceStore

	policy           ComputePolicy
	batchConcurrency int
	clock            clockwork.Clock
	logger           zerolog.Logger
	metrics          *obs.Metrics
	publisher        ports.DistancePublisher

	inflight singleflight.Group
}

func NewDistanceService(
	origins ports.EntityLocator,
	destinations ports.EntityLocator,
	provider ports.DistanceProvider,
	store ports.DistanceStore,
	opts Options,
) *DistanceService {
	if opts.Policy == "" {
		opts.Policy = ComputeAll
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = defaultBatchConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = obs.NewMetricsForTesting()
	}

	return &DistanceService{
		origins:          origins,
		destinations:     destinations,
		provider:         provider,
		store:            store,
		policy:           opts.Policy,
		batchConcurrency: opts.BatchConcurrency,
		clock:            opts.Clock,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		publisher:        opts.Publisher,
	}
}

// loggerFor prefers the request logger carried by ctx.
func (s *DistanceService) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// GetDistance returns the distance and travel time from entity a to entity b
// for mode, computing and caching it on a miss.
func (s *DistanceService) GetDistance(
	ctx context.Context,
	a, b int64,
	mode domain.TravelMode,
) (_ domain.Distance, err error) {
	defer obs.Time(ctx, "distance.GetDistance")(&err)

	if !mode.Valid() {
		return domain.Distance{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	return s.lookup(ctx, domain.PairKey{EntityAID: a, EntityBID: b}, mode, nil)
}

// endpoints carries coordinates already resolved by the caller.
type endpoints struct {
	origin      domain.Coordinates
	destination domain.Coordinates
}

// lookup reads the record for key and resolves mode from it.
func (s *DistanceService) lookup(
	ctx context.Context,
	key domain.PairKey,
	mode domain.TravelMode,
	ends *endpoints,
) (domain.Distance, error) {
	rec, found, err := s.store.Find(ctx, key)
	if err != nil {
		return domain.Distance{}, storageError("find distance record", err)
	}

	var existing *domain.DistanceRecord
	if found {
		existing = &rec
	}
	return s.resolve(ctx, key, mode, existing, ends)
}

// resolve serves a hit from existing or computes the miss. Callers missing
// the same pair share one computation; each waits only as long as its own
// ctx allows.
func (s *DistanceService) resolve(
	ctx context.Context,
	key domain.PairKey,
	mode domain.TravelMode,
	existing *domain.DistanceRecord,
	ends *endpoints,
) (domain.Distance, error) {
	if existing != nil {
		if leg, ok := existing.Leg(mode); ok {
			s.metrics.Lookups.WithLabelValues(mode.String(), "hit").Inc()
			return toDistance(key, mode, leg, true), nil
		}
	}
	s.metrics.Lookups.WithLabelValues(mode.String(), "miss").Inc()

	modes := s.modesToCompute(mode, existing)
	flightKey := fmt.Sprintf("%d:%d:%s:%v", key.EntityAID, key.EntityBID, mode, modes)

	for {
		ch := s.inflight.DoChan(flightKey, func() (any, error) {
			return s.compute(ctx, key, mode, modes, ends)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return domain.Distance{}, ctx.Err()
		case res = <-ch:
		}

		if res.Err != nil {
			// The computation ran under another caller's ctx and was cut
			// short by it; this caller is still live, so it takes over.
			if ctx.Err() == nil && abandoned(res.Err) {
				continue
			}
			return domain.Distance{}, res.Err
		}

		rec := res.Val.(domain.DistanceRecord)
		leg, ok := rec.Leg(mode)
		if !ok {
			return domain.Distance{}, fmt.Errorf("%w: no %s result", domain.ErrProviderUnavailable, mode)
		}
		return toDistance(key, mode, leg, false), nil
	}
}

// abandoned reports whether err is a bare cancellation rather than an
// upstream failure that merely wraps one.
func abandoned(err error) bool {
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *DistanceService) modesToCompute(requested domain.TravelMode, existing *domain.DistanceRecord) []domain.TravelMode {
	if s.policy == ComputeRequested {
		return []domain.TravelMode{requested}
	}
	modes := make([]domain.TravelMode, 0, 2)
	for _, m := range domain.Modes() {
		if existing != nil {
			if _, ok := existing.Leg(m); ok {
				continue
			}
		}
		modes = append(modes, m)
	}
	return modes
}

// compute locates both ends, asks the provider for every mode in modes and
// stores the legs it got. Nothing is written when the requested mode fails;
// a failure of any other mode only leaves that leg empty.
func (s *DistanceService) compute(
	ctx context.Context,
	key domain.PairKey,
	requested domain.TravelMode,
	modes []domain.TravelMode,
	ends *endpoints,
) (domain.DistanceRecord, error) {
	if ends == nil {
		origin, err := s.origins.Locate(ctx, key.EntityAID)
		if err != nil {
			return domain.DistanceRecord{}, fmt.Errorf("locate origin %d: %w", key.EntityAID, err)
		}
		destination, err := s.destinations.Locate(ctx, key.EntityBID)
		if err != nil {
			return domain.DistanceRecord{}, fmt.Errorf("locate destination %d: %w", key.EntityBID, err)
		}
		ends = &endpoints{origin: origin, destination: destination}
	}

	logger := s.loggerFor(ctx)
	rec := domain.DistanceRecord{EntityAID: key.EntityAID, EntityBID: key.EntityBID}
	for _, m := range modes {
		r, err := s.provider.GetDistance(ctx, ends.origin, ends.destination, m)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.DistanceRecord{}, ctxErr
			}
			if m == requested {
				return domain.DistanceRecord{}, providerError(m, err)
			}
			logger.Warn().Err(err).
				Int64("entity_a_id", key.EntityAID).
				Int64("entity_b_id", key.EntityBID).
				Str("mode", m.String()).
				Msg("companion mode not computed")
			continue
		}
		rec = rec.WithLeg(m, domain.Leg{
			DistanceMeters: r.DistanceMeters,
			TimeSeconds:    r.DurationSeconds,
			Estimated:      r.Estimated,
		})
	}

	rec.CalculatedAt = s.clock.Now().UTC().Truncate(time.Microsecond)
	if err := s.store.Upsert(ctx, rec); err != nil {
		s.metrics.StoreWrites.WithLabelValues("error").Inc()
		return domain.DistanceRecord{}, storageError("upsert distance record", err)
	}
	s.metrics.StoreWrites.WithLabelValues("success").Inc()

	if s.publisher != nil {
		s.publish(ctx, rec)
	}
	return rec, nil
}

// publish sends the stored row, including legs cached by earlier calls.
// If the row cannot be read back the freshly computed legs are sent instead.
func (s *DistanceService) publish(ctx context.Context, computed domain.DistanceRecord) {
	logger := s.loggerFor(ctx).With().
		Int64("entity_a_id", computed.EntityAID).
		Int64("entity_b_id", computed.EntityBID).
		Logger()

	out := computed
	stored, found, err := s.store.Find(ctx, computed.Key())
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("read back distance record for publishing")
	case found:
		out = stored
	}

	if err := s.publisher.PublishDistance(ctx, out); err != nil {
		logger.Warn().Err(err).Msg("publish distance record failed")
	}
}

func toDistance(key domain.PairKey, mode domain.TravelMode, leg domain.Leg, cached bool) domain.Distance {
	return domain.Distance{
		EntityAID:      key.EntityAID,
		EntityBID:      key.EntityBID,
		Mode:           mode,
		DistanceMeters: leg.DistanceMeters,
		TimeSeconds:    leg.TimeSeconds,
		Estimated:      leg.Estimated,
		Cached:         cached,
	}
}

func storageError(op string, err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func providerError(mode domain.TravelMode, err error) error {
	if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrInvalidMode) {
		return fmt.Errorf("compute %s: %w", mode, err)
	}
	return fmt.Errorf("%w: compute %s: %w", domain.ErrProviderUnavailable, mode, err)
}
