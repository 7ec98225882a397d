package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/obs"
	"time"

	"github.com/lib/pq"
)

// SQLDistanceStore is a Postgres-backed store for pairwise distance records.
type SQLDistanceStore struct {
	DB *sql.DB
}

func NewSQLDistanceStore(db *sql.DB) *SQLDistanceStore {
	return &SQLDistanceStore{DB: db}
}

// Fetch the record for one pair.
func (s *SQLDistanceStore) Find(
	ctx context.Context,
	key domain.PairKey,
) (_ domain.DistanceRecord, _ bool, err error) {
	defer obs.Time(ctx, "distance.store.Find")(&err)

	if s.DB == nil {
		return domain.DistanceRecord{}, false, fmt.Errorf("%w: distance store: db is nil", domain.ErrStorage)
	}

	q := `
	SELECT` + recordColumns + `
	FROM distance_records
	WHERE entity_a_id = $1
		AND entity_b_id = $2;
	`

	var row recordRow
	var calculatedAt time.Time
	err = s.DB.QueryRowContext(ctx, q, key.EntityAID, key.EntityBID).Scan(row.scanDest(&calculatedAt)...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DistanceRecord{}, false, nil
	}
	if err != nil {
		return domain.DistanceRecord{}, false, fmt.Errorf("%w: find distance record %d->%d: %w",
			domain.ErrStorage, key.EntityAID, key.EntityBID, err)
	}

	return row.record(calculatedAt.UTC()), true, nil
}

// Fetch records for one origin and multiple destinations.
func (s *SQLDistanceStore) FindMany(
	ctx context.Context,
	entityAID int64,
	entityBIDs []int64,
) (_ map[int64]domain.DistanceRecord, err error) {
	defer obs.Time(ctx, "distance.store.FindMany")(&err)

	if s.DB == nil {
		return nil, fmt.Errorf("%w: distance store: db is nil", domain.ErrStorage)
	}

	uniq := domain.UniqueIDs(entityBIDs)
	if len(uniq) == 0 {
		return map[int64]domain.DistanceRecord{}, nil
	}

	q := `
	SELECT` + recordColumns + `
	FROM distance_records
	WHERE entity_a_id = $1
		AND entity_b_id = ANY($2::bigint[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, entityAID, pq.Array(uniq))
	if err != nil {
		return nil, fmt.Errorf("%w: find distance records: query distance_records table: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[int64]domain.DistanceRecord, len(uniq))
	for rows.Next() {
		var row recordRow
		var calculatedAt time.Time
		if err := rows.Scan(row.scanDest(&calculatedAt)...); err != nil {
			return nil, fmt.Errorf("%w: find distance records: scan rows: %w", domain.ErrStorage, err)
		}
		out[row.EntityBID] = row.record(calculatedAt.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find distance records: row iteration: %w", domain.ErrStorage, err)
	}

	return out, nil
}

// Insert a record or merge its legs into the existing row. The single
// INSERT ... ON CONFLICT statement is atomic per pair key; COALESCE keeps
// stored legs the update does not carry.
func (s *SQLDistanceStore) Upsert(ctx context.Context, rec domain.DistanceRecord) (err error) {
	defer obs.Time(ctx, "distance.store.Upsert")(&err)

	if s.DB == nil {
		return fmt.Errorf("%w: distance store: db is nil", domain.ErrStorage)
	}

	q := `
	INSERT INTO distance_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (entity_a_id, entity_b_id) DO UPDATE
	SET walking_distance_meters = COALESCE(EXCLUDED.walking_distance_meters, distance_records.walking_distance_meters),
		walking_time_seconds = COALESCE(EXCLUDED.walking_time_seconds, distance_records.walking_time_seconds),
		walking_estimated = COALESCE(EXCLUDED.walking_estimated, distance_records.walking_estimated),
		driving_distance_meters = COALESCE(EXCLUDED.driving_distance_meters, distance_records.driving_distance_meters),
		driving_time_seconds = COALESCE(EXCLUDED.driving_time_seconds, distance_records.driving_time_seconds),
		driving_estimated = COALESCE(EXCLUDED.driving_estimated, distance_records.driving_estimated),
		calculated_at = EXCLUDED.calculated_at;
	`

	if _, err := s.DB.ExecContext(ctx, q, upsertArgs(rec, rec.CalculatedAt.UTC())...); err != nil {
		return fmt.Errorf("%w: upsert distance record %d->%d: %w",
			domain.ErrStorage, rec.EntityAID, rec.EntityBID, err)
	}

	return nil
}
