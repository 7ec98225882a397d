package cache

import (
	"database/sql"
	"property-distance-service/internal/domain"
	"time"
)

const recordColumns = `
	entity_a_id,
	entity_b_id,
	walking_distance_meters,
	walking_time_seconds,
	walking_estimated,
	driving_distance_meters,
	driving_time_seconds,
	driving_estimated,
	calculated_at`

// recordRow mirrors one distance_records row. Leg columns are nullable.
type recordRow struct {
	EntityAID        int64
	EntityBID        int64
	WalkingMeters    sql.NullInt64
	WalkingSeconds   sql.NullInt64
	WalkingEstimated sql.NullBool
	DrivingMeters    sql.NullInt64
	DrivingSeconds   sql.NullInt64
	DrivingEstimated sql.NullBool
}

func (r *recordRow) scanDest(calculatedAt any) []any {
	return []any{
		&r.EntityAID,
		&r.EntityBID,
		&r.WalkingMeters,
		&r.WalkingSeconds,
		&r.WalkingEstimated,
		&r.DrivingMeters,
		&r.DrivingSeconds,
		&r.DrivingEstimated,
		calculatedAt,
	}
}

func (r *recordRow) record(calculatedAt time.Time) domain.DistanceRecord {
	return domain.DistanceRecord{
		EntityAID:    r.EntityAID,
		EntityBID:    r.EntityBID,
		Walking:      legFromColumns(r.WalkingMeters, r.WalkingSeconds, r.WalkingEstimated),
		Driving:      legFromColumns(r.DrivingMeters, r.DrivingSeconds, r.DrivingEstimated),
		CalculatedAt: calculatedAt,
	}
}

// A leg is present only when both its distance and time are stored.
func legFromColumns(meters, seconds sql.NullInt64, estimated sql.NullBool) *domain.Leg {
	if !meters.Valid || !seconds.Valid {
		return nil
	}
	return &domain.Leg{
		DistanceMeters: int(meters.Int64),
		TimeSeconds:    int(seconds.Int64),
		Estimated:      estimated.Valid && estimated.Bool,
	}
}

// legArgs returns the three column values for a leg, all NULL when absent
// so the upsert's COALESCE keeps the stored values.
func legArgs(l *domain.Leg) (meters, seconds, estimated any) {
	if l == nil {
		return nil, nil, nil
	}
	return int64(l.DistanceMeters), int64(l.TimeSeconds), l.Estimated
}

func upsertArgs(rec domain.DistanceRecord, calculatedAt any) []any {
	wm, ws, we := legArgs(rec.Walking)
	dm, ds, de := legArgs(rec.Driving)
	return []any{rec.EntityAID, rec.EntityBID, wm, ws, we, dm, ds, de, calculatedAt}
}
