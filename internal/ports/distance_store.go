package ports

import (
	"context"
	"property-distance-service/internal/domain"
)

// Port: durable keyed storage for DistanceRecords, one row per pair.
type DistanceStore interface {
	// Return the record for key; found is false when no record exists.
	Find(ctx context.Context, key domain.PairKey) (rec domain.DistanceRecord, found bool, err error)
	// Return existing records from one origin to many destinations, keyed by destination id.
	FindMany(ctx context.Context, entityAID int64, entityBIDs []int64) (map[int64]domain.DistanceRecord, error)
	// Insert the record, or merge its non-nil legs into the existing row and
	// refresh CalculatedAt. Must be atomic per pair key.
	Upsert(ctx context.Context, rec domain.DistanceRecord) error
}
