package cache

import (
	"context"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/ports"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "distance:"

// RedisDistanceStore is a read-through layer in front of a durable store.
//
// Reads try Redis first and populate it from the inner store on a miss.
// Writes go to the inner store and then drop the Redis entry, so Redis never
// holds a value the inner store's merge has not produced. Redis failures are
// logged and bypassed; the inner store stays authoritative.
type RedisDistanceStore struct {
	client *redis.Client
	inner  ports.DistanceStore
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisDistanceStore(client *redis.Client, inner ports.DistanceStore, ttl time.Duration, logger zerolog.Logger) *RedisDistanceStore {
	return &RedisDistanceStore{client: client, inner: inner, ttl: ttl, logger: logger}
}

type cachedLeg struct {
	DistanceMeters int  `json:"distance_meters"`
	TimeSeconds    int  `json:"time_seconds"`
	Estimated      bool `json:"estimated"`
}

type cachedRecord struct {
	EntityAID    int64      `json:"entity_a_id"`
	EntityBID    int64      `json:"entity_b_id"`
	Walking      *cachedLeg `json:"walking,omitempty"`
	Driving      *cachedLeg `json:"driving,omitempty"`
	CalculatedAt time.Time  `json:"calculated_at"`
}

func toCachedLeg(l *domain.Leg) *cachedLeg {
	if l == nil {
		return nil
	}
	return &cachedLeg{DistanceMeters: l.DistanceMeters, TimeSeconds: l.TimeSeconds, Estimated: l.Estimated}
}

func fromCachedLeg(l *cachedLeg) *domain.Leg {
	if l == nil {
		return nil
	}
	return &domain.Leg{DistanceMeters: l.DistanceMeters, TimeSeconds: l.TimeSeconds, Estimated: l.Estimated}
}

func redisKey(key domain.PairKey) string {
	return fmt.Sprintf("%s%d:%d", redisKeyPrefix, key.EntityAID, key.EntityBID)
}

func (s *RedisDistanceStore) Find(ctx context.Context, key domain.PairKey) (domain.DistanceRecord, bool, error) {
	if rec, ok := s.get(ctx, key); ok {
		return rec, true, nil
	}

	rec, found, err := s.inner.Find(ctx, key)
	if err != nil || !found {
		return rec, found, err
	}

	s.set(ctx, rec)
	return rec, true, nil
}

func (s *RedisDistanceStore) FindMany(ctx context.Context, entityAID int64, entityBIDs []int64) (map[int64]domain.DistanceRecord, error) {
	uniq := domain.UniqueIDs(entityBIDs)
	out := make(map[int64]domain.DistanceRecord, len(uniq))
	if len(uniq) == 0 {
		return out, nil
	}

	keys := make([]string, len(uniq))
	for i, b := range uniq {
		keys[i] = redisKey(domain.PairKey{EntityAID: entityAID, EntityBID: b})
	}

	misses := uniq
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("redis mget failed, reading through")
	} else {
		misses = make([]int64, 0, len(uniq))
		for i, v := range vals {
			rec, ok := decodeCached(v)
			if !ok {
				misses = append(misses, uniq[i])
				continue
			}
			out[uniq[i]] = rec
		}
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.inner.FindMany(ctx, entityAID, misses)
	if err != nil {
		return nil, err
	}
	for b, rec := range fetched {
		out[b] = rec
		s.set(ctx, rec)
	}
	return out, nil
}

func (s *RedisDistanceStore) Upsert(ctx context.Context, rec domain.DistanceRecord) error {
	if err := s.inner.Upsert(ctx, rec); err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisKey(rec.Key())).Err(); err != nil {
		s.logger.Warn().Err(err).
			Int64("entity_a_id", rec.EntityAID).
			Int64("entity_b_id", rec.EntityBID).
			Msg("redis invalidate failed")
	}
	return nil
}

func (s *RedisDistanceStore) get(ctx context.Context, key domain.PairKey) (domain.DistanceRecord, bool) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("redis get failed, reading through")
		}
		return domain.DistanceRecord{}, false
	}
	return decodeCached(raw)
}

func (s *RedisDistanceStore) set(ctx context.Context, rec domain.DistanceRecord) {
	payload, err := json.Marshal(cachedRecord{
		EntityAID:    rec.EntityAID,
		EntityBID:    rec.EntityBID,
		Walking:      toCachedLeg(rec.Walking),
		Driving:      toCachedLeg(rec.Driving),
		CalculatedAt: rec.CalculatedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode cached distance record")
		return
	}
	if err := s.client.Set(ctx, redisKey(rec.Key()), payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis set failed")
	}
}

// decodeCached accepts the []byte from GET or the string/nil values from MGET.
func decodeCached(v any) (domain.DistanceRecord, bool) {
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return domain.DistanceRecord{}, false
	}

	var c cachedRecord
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.DistanceRecord{}, false
	}
	return domain.DistanceRecord{
		EntityAID:    c.EntityAID,
		EntityBID:    c.EntityBID,
		Walking:      fromCachedLeg(c.Walking),
		Driving:      fromCachedLeg(c.Driving),
		CalculatedAt: c.CalculatedAt,
	}, true
}
