package cache

import (
	"context"
	"property-distance-service/internal/domain"
	"sync"
)

// MemoryDistanceStore keeps records in a map guarded by a mutex. It has the
// same merge semantics as the SQL stores and is used for local runs and tests.
type MemoryDistanceStore struct {
	mu      sync.RWMutex
	records map[domain.PairKey]domain.DistanceRecord
}

func NewMemoryDistanceStore() *MemoryDistanceStore {
	return &MemoryDistanceStore{records: make(map[domain.PairKey]domain.DistanceRecord)}
}

func (s *MemoryDistanceStore) Find(_ context.Context, key domain.PairKey) (domain.DistanceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	// Merge into an empty record to hand out copies of the legs.
	return domain.DistanceRecord{EntityAID: rec.EntityAID, EntityBID: rec.EntityBID}.Merge(rec), ok, nil
}

func (s *MemoryDistanceStore) FindMany(_ context.Context, entityAID int64, entityBIDs []int64) (map[int64]domain.DistanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]domain.DistanceRecord, len(entityBIDs))
	for _, b := range entityBIDs {
		key := domain.PairKey{EntityAID: entityAID, EntityBID: b}
		if rec, ok := s.records[key]; ok {
			out[b] = domain.DistanceRecord{EntityAID: entityAID, EntityBID: b}.Merge(rec)
		}
	}
	return out, nil
}

func (s *MemoryDistanceStore) Upsert(_ context.Context, rec domain.DistanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	existing, ok := s.records[key]
	if !ok {
		existing = domain.DistanceRecord{EntityAID: rec.EntityAID, EntityBID: rec.EntityBID}
	}
	s.records[key] = existing.Merge(rec)
	return nil
}

// Len returns the number of stored pairs.
func (s *MemoryDistanceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
