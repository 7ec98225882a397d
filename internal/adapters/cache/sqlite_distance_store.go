package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/obs"
	"strings"
	"time"
)

// SQLite backed store for pairwise distance records.
// calculated_at is kept as RFC 3339 text.
type SqliteDistanceStore struct {
	DB *sql.DB
}

func NewSqliteDistanceStore(db *sql.DB) *SqliteDistanceStore {
	return &SqliteDistanceStore{DB: db}
}

func parseCalculatedAt(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse calculated_at %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Fetch the record for one pair.
func (s *SqliteDistanceStore) Find(
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
	WHERE entity_a_id = ?
		AND entity_b_id = ?;
	`

	var row recordRow
	var raw string
	err = s.DB.QueryRowContext(ctx, q, key.EntityAID, key.EntityBID).Scan(row.scanDest(&raw)...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DistanceRecord{}, false, nil
	}
	if err != nil {
		return domain.DistanceRecord{}, false, fmt.Errorf("%w: find distance record %d->%d: %w",
			domain.ErrStorage, key.EntityAID, key.EntityBID, err)
	}

	calculatedAt, err := parseCalculatedAt(raw)
	if err != nil {
		return domain.DistanceRecord{}, false, fmt.Errorf("%w: find distance record: %w", domain.ErrStorage, err)
	}

	return row.record(calculatedAt), true, nil
}

// Fetch records for one origin and multiple destinations.
func (s *SqliteDistanceStore) FindMany(
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

	ph := make([]string, 0, len(uniq))
	args := make([]any, 0, 1+len(uniq))
	args = append(args, entityAID)
	for _, id := range uniq {
		ph = append(ph, "?")
		args = append(args, id)
	}

	// SQLite does not support binding slices directly in an IN (...) clause.
	// Only the placeholder structure is interpolated; all values remain parameterized.
	q := fmt.Sprintf(`
	SELECT`+recordColumns+`
	FROM distance_records
	WHERE entity_a_id = ?
		AND entity_b_id IN (%s);
	`, strings.Join(ph, ","))

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: find distance records: query distance_records table: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[int64]domain.DistanceRecord, len(uniq))
	for rows.Next() {
		var row recordRow
		var raw string
		if err := rows.Scan(row.scanDest(&raw)...); err != nil {
			return nil, fmt.Errorf("%w: find distance records: scan rows: %w", domain.ErrStorage, err)
		}
		calculatedAt, err := parseCalculatedAt(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: find distance records: %w", domain.ErrStorage, err)
		}
		out[row.EntityBID] = row.record(calculatedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find distance records: row iteration: %w", domain.ErrStorage, err)
	}

	return out, nil
}

// Insert a record or merge its legs into the existing row.
func (s *SqliteDistanceStore) Upsert(ctx context.Context, rec domain.DistanceRecord) (err error) {
	defer obs.Time(ctx, "distance.store.Upsert")(&err)

	if s.DB == nil {
		return fmt.Errorf("%w: distance store: db is nil", domain.ErrStorage)
	}

	q := `
	INSERT INTO distance_records (` + recordColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (entity_a_id, entity_b_id) DO UPDATE
	SET walking_distance_meters = COALESCE(excluded.walking_distance_meters, walking_distance_meters),
		walking_time_seconds = COALESCE(excluded.walking_time_seconds, walking_time_seconds),
		walking_estimated = COALESCE(excluded.walking_estimated, walking_estimated),
		driving_distance_meters = COALESCE(excluded.driving_distance_meters, driving_distance_meters),
		driving_time_seconds = COALESCE(excluded.driving_time_seconds, driving_time_seconds),
		driving_estimated = COALESCE(excluded.driving_estimated, driving_estimated),
		calculated_at = excluded.calculated_at;
	`

	calculatedAt := rec.CalculatedAt.UTC().Format(time.RFC3339Nano)
	if _, err := s.DB.ExecContext(ctx, q, upsertArgs(rec, calculatedAt)...); err != nil {
		return fmt.Errorf("%w: upsert distance record %d->%d: %w",
			domain.ErrStorage, rec.EntityAID, rec.EntityBID, err)
	}

	return nil
}
